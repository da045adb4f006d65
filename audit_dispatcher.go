package phishgate

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples engine operations from the sink: events queue on
// a buffered channel and a single background worker hands them to the sink.
//
// The worker calls the sink with a context that Close cancels, so a sink
// blocked mid-Emit is released during shutdown and Close cannot hang on it.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool

	shutdown context.Context
	stop     context.CancelFunc
	idle     chan struct{} // closed when the worker returns

	dropped atomic.Uint64
	closing atomic.Bool
	once    sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	shutdown, stop := context.WithCancel(context.Background())
	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, cfg.BufferSize),
		dropIfFull: cfg.DropIfFull,
		shutdown:   shutdown,
		stop:       stop,
		idle:       make(chan struct{}),
	}

	go d.work()

	return d
}

func (d *auditDispatcher) work() {
	defer close(d.idle)

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(d.shutdown, event)
		case <-d.shutdown.Done():
			d.flush()
			return
		}
	}
}

// flush hands already-queued events to the sink without waiting for new
// ones. It runs after shutdown, so sinks see a cancelled context and may
// discard rather than deliver.
func (d *auditDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(d.shutdown, event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.shutdown.Done():
	}
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		d.stop()
		<-d.idle
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
