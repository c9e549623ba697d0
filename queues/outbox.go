package queues

import (
	"context"
	"sync"
	"time"
)

// WriteFunc delivers one message to the underlying connection.
type WriteFunc func(msg any) error

// Outbox is a bounded per-connection queue drained by a single writer
// goroutine. Producers never block: Send drops the message when the queue
// is full or the outbox has stopped.
type Outbox struct {
	queue chan any
	write WriteFunc

	heartbeat     time.Duration
	heartbeatFunc func() error

	mu      sync.RWMutex
	stopped bool
	err     error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type OutboxOption func(*Outbox)

// WithHeartbeat calls fn every interval from the writer goroutine.
func WithHeartbeat(interval time.Duration, fn func() error) OutboxOption {
	return func(o *Outbox) {
		o.heartbeat = interval
		o.heartbeatFunc = fn
	}
}

func NewOutbox(parent context.Context, size int, write WriteFunc, opts ...OutboxOption) *Outbox {
	ctx, cancel := context.WithCancel(parent)
	o := &Outbox{
		queue:  make(chan any, size),
		write:  write,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Outbox) Start() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.drainLoop()
	}()
}

func (o *Outbox) drainLoop() {
	var tick <-chan time.Time
	if o.heartbeat > 0 && o.heartbeatFunc != nil {
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-o.ctx.Done():
			return
		case msg := <-o.queue:
			if err := o.write(msg); err != nil {
				o.fail(err)
				return
			}
		case <-tick:
			if err := o.heartbeatFunc(); err != nil {
				o.fail(err)
				return
			}
		}
	}
}

func (o *Outbox) fail(err error) {
	o.mu.Lock()
	o.stopped = true
	o.err = err
	o.mu.Unlock()
	o.cancel()
}

// Send enqueues msg and reports whether it was accepted.
func (o *Outbox) Send(msg any) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.stopped {
		return false
	}
	select {
	case o.queue <- msg:
		return true
	default:
		return false
	}
}

// Done is closed once the writer has stopped, either by Shutdown or a write failure.
func (o *Outbox) Done() <-chan struct{} {
	return o.ctx.Done()
}

// Err returns the write error that stopped the outbox, if any.
func (o *Outbox) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

func (o *Outbox) Pending() int {
	return len(o.queue)
}

// Shutdown stops the writer and waits for it to exit. Queued messages are discarded.
func (o *Outbox) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
