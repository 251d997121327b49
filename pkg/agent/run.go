package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

/*
run is one in-flight execution. Its cancel handle is what tasks/cancel
reaches, and once guards the single final event.
*/
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	reqCtx   *RequestContext
	bus      Bus
	once     sync.Once
	canceled atomic.Bool
}

/*
finalize publishes event and finishes the bus, at most once per run.
published is false when another path already finalized.
*/
func (r *run) finalize(ctx context.Context, event *a2a.TaskStatusUpdateEvent) (published bool, err error) {
	r.once.Do(func() {
		published = true
		err = r.bus.Publish(ctx, event)
		r.bus.Finish()
	})

	return published, err
}

type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*run)}
}

func (registry *runRegistry) start(parent context.Context, reqCtx *RequestContext, bus Bus) (*run, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, busy := registry.runs[reqCtx.TaskID]; busy {
		return nil, ErrTaskBusy
	}

	ctx, cancel := context.WithCancel(parent)

	r := &run{
		ctx:    ctx,
		cancel: cancel,
		reqCtx: reqCtx,
		bus:    bus,
	}

	registry.runs[reqCtx.TaskID] = r

	return r, nil
}

func (registry *runRegistry) get(taskID string) (*run, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	r, ok := registry.runs[taskID]
	return r, ok
}

/*
remove forgets r and releases its context. A newer run registered under the
same task id is left alone.
*/
func (registry *runRegistry) remove(r *run) {
	registry.mu.Lock()

	if registry.runs[r.reqCtx.TaskID] == r {
		delete(registry.runs, r.reqCtx.TaskID)
	}

	registry.mu.Unlock()
	r.cancel()
}

func (registry *runRegistry) len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	return len(registry.runs)
}
