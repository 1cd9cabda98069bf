package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering. OnDrop, when set, runs once per
// event discarded because the buffer was full.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	OnDrop     func()
}

// Dispatcher relays events to its sinks from one goroutine, so a sink never
// sees concurrent Emit calls from it. Every method is safe on a nil
// receiver.
type Dispatcher struct {
	cfg     Config
	sinks   []Sink
	queue   chan Event
	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher returns nil when auditing is disabled.
func NewDispatcher(cfg Config, sinks ...Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher{
		cfg:     cfg,
		queue:   make(chan Event, cfg.BufferSize),
		drained: make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}

	go func() {
		defer close(d.drained)
		for event := range d.queue {
			for _, s := range d.sinks {
				s.Emit(context.Background(), event)
			}
		}
	}()
	return d
}

// Emit queues event. With DropIfFull a full buffer discards the event;
// otherwise Emit waits for room or for ctx to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
			if d.cfg.OnDrop != nil {
				d.cfg.OnDrop()
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close stops accepting events and blocks until queued ones are delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.drained
}

// Dropped counts events discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
