package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/utils"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const defaultListenerTimeout = 5 * time.Second

// Listener receives every dispatched event. Errors are logged by the
// dispatcher and never reach the code that emitted the event.
type Listener interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Publisher is what services depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Dispatcher fans events out to a fixed set of listeners.
type Dispatcher struct {
	listeners []Listener
	pool      *utils.WorkerPool
	logger    *logger.Logger
	timeout   time.Duration
}

// NewDispatcher registers listeners once; there is no runtime add/remove.
func NewDispatcher(log *logger.Logger, listeners ...Listener) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		listeners: listeners,
		logger:    log.Named("dispatcher"),
		timeout:   defaultListenerTimeout,
	}
}

// WithPool makes Publish hand dispatch work to pool.
func (d *Dispatcher) WithPool(pool *utils.WorkerPool) *Dispatcher {
	d.pool = pool
	return d
}

// WithTimeout bounds each listener invocation.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Listeners returns the registered listener names.
func (d *Dispatcher) Listeners() []string {
	names := make([]string, 0, len(d.listeners))
	for _, l := range d.listeners {
		names = append(names, l.Name())
	}
	return names
}

// Publish dispatches ev without blocking the caller. The request context's
// values (trace id) are kept but its cancellation is not.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	if d.pool == nil {
		d.Dispatch(ctx, ev)
		return
	}
	job := func() { d.Dispatch(ctx, ev) }
	if !d.pool.TrySubmit(job) {
		d.logger.WarnContext(ctx, "worker pool saturated, dispatching on a new goroutine",
			zap.String("kind", string(ev.Kind())))
		go job()
	}
}

// Dispatch runs every listener concurrently and waits for all of them.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	var wg sync.WaitGroup
	for _, l := range d.listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			if err := d.invoke(ctx, l, ev); err != nil {
				d.logger.ErrorContext(ctx, "listener failed",
					zap.String("listener", l.Name()),
					zap.String("kind", string(ev.Kind())),
					zap.Error(err))
			}
		}(l)
	}
	wg.Wait()
}

func (d *Dispatcher) invoke(ctx context.Context, l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return l.Handle(ctx, ev)
}
