package quickmatch

import (
	"context"
	"sync"

	"github.com/chachabrian/quickmatch-backend/internal/events"
)

type delivery struct {
	ctx  context.Context
	ch   events.Channel
	ev   events.Outbound
	send func(context.Context, events.Channel, events.Outbound)
}

// outbox hands committed notifications to a single background sender so callers
// never wait on the gateway. Deliveries leave in the order they were queued.
type outbox struct {
	mu      sync.Mutex
	idle    *sync.Cond
	queue   []delivery
	pending int
	running bool
}

func newOutbox() *outbox {
	o := &outbox{}
	o.idle = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(d delivery) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, d)
	o.pending++
	if !o.running {
		o.running = true
		go o.drain()
	}
}

func (o *outbox) drain() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.running = false
			o.mu.Unlock()
			return
		}
		d := o.queue[0]
		o.queue[0] = delivery{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		d.send(d.ctx, d.ch, d.ev)

		o.mu.Lock()
		o.pending--
		if o.pending == 0 {
			o.idle.Broadcast()
		}
		o.mu.Unlock()
	}
}

// wait blocks until every queued delivery has been attempted.
func (o *outbox) wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.pending > 0 {
		o.idle.Wait()
	}
}
