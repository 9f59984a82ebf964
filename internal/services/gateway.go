package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
)

// Sink is one delivery path for party events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ch events.Channel, ev events.Outbound) error
}

var getGatewayMetrics = sync.OnceValue(func() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickmatch",
		Name:      "notifications_total",
		Help:      "Notification publish attempts per sink and result.",
	}, []string{"sink", "result"})
})

// Fanout publishes every event to all sinks. Each sink gets its own timeout and a
// failing sink never stops the others. Delivery is best-effort: the returned error
// joins the sink failures for the caller to log.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	log     *logrus.Entry
	sent    *prometheus.CounterVec
}

func NewFanout(timeout time.Duration, log *logrus.Entry, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, timeout: timeout, log: log, sent: getGatewayMetrics()}
}

func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

func (f *Fanout) Publish(ctx context.Context, ch events.Channel, ev events.Outbound) error {
	errs := make([]error, len(f.sinks))

	var wg sync.WaitGroup
	for i, sink := range f.sinks {
		wg.Add(1)
		go func(i int, sink Sink) {
			defer wg.Done()
			sctx := ctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			if err := sink.Publish(sctx, ch, ev); err != nil {
				f.sent.WithLabelValues(sink.Name(), "error").Inc()
				f.log.WithError(err).WithFields(logrus.Fields{
					"sink":    sink.Name(),
					"channel": ch.String(),
					"event":   ev.EventName(),
				}).Warn("Notification sink failed")
				errs[i] = err
				return
			}
			f.sent.WithLabelValues(sink.Name(), "ok").Inc()
		}(i, sink)
	}
	wg.Wait()

	return errors.Join(errs...)
}
