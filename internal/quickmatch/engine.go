// Package quickmatch arbitrates urgent booking requests between one client and the
// businesses that bid on them. All mutual exclusion is delegated to conditional
// updates in the repository; nothing here holds a lock across a store or gateway call.
package quickmatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
	"github.com/chachabrian/quickmatch-backend/internal/logging"
	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// Gateway delivers an event to one party. Delivery is best effort; the engine logs
// and drops any error it returns.
type Gateway interface {
	Publish(ctx context.Context, ch events.Channel, ev events.Outbound) error
}

// LogoResolver turns a stored logo key into a URL the client can fetch.
type LogoResolver interface {
	LogoURL(key string) string
}

type Options struct {
	RequestTTL     time.Duration
	CandidateLimit int
	MaxDistanceKm  float64
	SweepInterval  time.Duration
	SweepBatch     int

	Logos  LogoResolver
	Logger *logrus.Entry
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		RequestTTL:     120 * time.Second,
		CandidateLimit: 20,
		SweepInterval:  5 * time.Second,
		SweepBatch:     100,
	}
}

// deps is shared by every component of one Engine.
type deps struct {
	store   repository.Store
	gateway Gateway
	logos   LogoResolver
	now     func() time.Time
	log     *logrus.Entry
	m       *metrics
	outbox  *outbox
}

// notify queues ev for delivery after the state change has committed. It returns
// immediately; failures are logged and never reach the caller.
func (d *deps) notify(ctx context.Context, ch events.Channel, ev events.Outbound) {
	if d.gateway == nil {
		return
	}
	d.outbox.push(delivery{ctx: context.WithoutCancel(ctx), ch: ch, ev: ev, send: d.publish})
}

func (d *deps) publish(ctx context.Context, ch events.Channel, ev events.Outbound) {
	if err := d.gateway.Publish(ctx, ch, ev); err != nil {
		d.m.publishDropped.WithLabelValues(ev.EventName()).Inc()
		d.log.WithError(err).WithFields(logrus.Fields{
			"channel": ch.String(),
			"event":   ev.EventName(),
		}).Warn("Failed to publish notification")
	}
}

func (d *deps) logoURL(key string) string {
	if key == "" || d.logos == nil {
		return ""
	}
	return d.logos.LogoURL(key)
}

type Engine struct {
	Credits *CreditGate
	Matcher *Matcher
	Intake  *Intake
	Ledger  *Ledger
	Arbiter *Arbiter
	Sweeper *Sweeper

	*deps
}

func New(store repository.Store, gateway Gateway, opts Options) *Engine {
	def := DefaultOptions()
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = def.RequestTTL
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = def.CandidateLimit
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = def.SweepBatch
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	d := &deps{
		store:   store,
		gateway: gateway,
		logos:   opts.Logos,
		now:     opts.Now,
		log:     opts.Logger,
		m:       getMetrics(),
		outbox:  newOutbox(),
	}

	credits := &CreditGate{store: store}
	matcher := &Matcher{store: store, limit: opts.CandidateLimit, maxDistanceKm: opts.MaxDistanceKm}
	arbiter := &Arbiter{deps: d}
	return &Engine{
		Credits: credits,
		Matcher: matcher,
		Intake:  &Intake{deps: d, credits: credits, matcher: matcher, ttl: opts.RequestTTL},
		Ledger:  &Ledger{deps: d},
		Arbiter: arbiter,
		Sweeper: &Sweeper{arbiter: arbiter, store: store, interval: opts.SweepInterval, batch: opts.SweepBatch, now: opts.Now, log: opts.Logger.WithField("component", "sweeper")},
		deps:    d,
	}
}

// Flush blocks until every queued notification has been handed to the gateway, or
// ctx is done.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.outbox.wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
