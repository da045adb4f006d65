package phishgate

import (
	"context"
	"sync"
	"sync/atomic"
)

// notifyJob performs one outbound delivery against the configured Notifier.
type notifyJob struct {
	kind string
	send func(ctx context.Context) error
}

// notifyDispatcher runs notifier calls on a background goroutine so engine
// operations never block on mail delivery. Failures are reported through the
// onError callback and a drop counter; there is no retry.
type notifyDispatcher struct {
	cfg       NotifyConfig
	ch        chan notifyJob
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	onError   func(kind string, err error)
}

func newNotifyDispatcher(cfg NotifyConfig, onError func(kind string, err error)) *notifyDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &notifyDispatcher{
		cfg:     cfg,
		ch:      make(chan notifyJob, cfg.BufferSize),
		done:    make(chan struct{}),
		onError: onError,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *notifyDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.ch:
			d.deliver(job)
		case <-d.done:
			for {
				select {
				case job := <-d.ch:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) deliver(job notifyJob) {
	ctx := context.Background()
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	if err := job.send(ctx); err != nil && d.onError != nil {
		d.onError(job.kind, err)
	}
}

// Enqueue hands a delivery to the background worker. Deliveries are dropped,
// never blocked on, when the buffer is full.
func (d *notifyDispatcher) Enqueue(kind string, send func(ctx context.Context) error) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- notifyJob{kind: kind, send: send}:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
