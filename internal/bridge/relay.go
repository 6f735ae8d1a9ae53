package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-logr/logr"
	"github.com/smallnest/chanx"

	"github.com/ctagard/cellbridge/internal/dap"
)

const relayInitialCapacity = 16

// relay moves adapter events to the frontend in arrival order.
// push never blocks the adapter read loop for long; the queue is unbounded.
type relay struct {
	ctx      context.Context
	queue    *chanx.UnboundedChan[*dap.Event]
	frontend Frontend
	log      logr.Logger
	wg       sync.WaitGroup
}

func newRelay(ctx context.Context, frontend Frontend, log logr.Logger) *relay {
	r := &relay{
		ctx:      ctx,
		queue:    chanx.NewUnboundedChan[*dap.Event](ctx, relayInitialCapacity),
		frontend: frontend,
		log:      log,
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// push queues evt; events pushed after the relay context ends are dropped
func (r *relay) push(evt *dap.Event) {
	select {
	case r.queue.In <- evt:
	case <-r.ctx.Done():
	}
}

// wait blocks until the worker has exited; the relay context must be cancelled first
func (r *relay) wait() {
	r.wg.Wait()
}

func (r *relay) worker() {
	defer r.wg.Done()

	for {
		select {
		case evt, ok := <-r.queue.Out:
			if !ok {
				return
			}
			r.publish(evt)

		case <-r.ctx.Done():
			return
		}
	}
}

func (r *relay) publish(evt *dap.Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		r.log.Error(err, "Failed to encode adapter event", "event", evt.Event)
		return
	}
	if err := r.frontend.Publish(raw); err != nil {
		r.log.Error(err, "Failed to publish adapter event", "event", evt.Event)
	}
}
