// Package sweepers runs periodic maintenance tasks such as transfer expiry
// and session liveness checks.
package sweepers

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
)

// TickFunc does one sweep. The returned count is only logged.
type TickFunc func(now time.Time) int

type Sweeper interface {
	Start()
	Shutdown(ctx context.Context) error
}

type SweeperImpl struct {
	name     string
	interval time.Duration
	tick     TickFunc
	now      func() time.Time
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*SweeperImpl)

func WithClock(now func() time.Time) Option {
	return func(s *SweeperImpl) { s.now = now }
}

func NewSweeperImpl(
	parent context.Context,
	name string,
	interval time.Duration,
	tick TickFunc,
	l logger.Logger,
	opts ...Option,
) *SweeperImpl {
	ctx, cancel := context.WithCancel(parent)

	s := &SweeperImpl{
		name:     name,
		interval: interval,
		tick:     tick,
		now:      time.Now,
		logger:   l.With("sweeper", name),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SweeperImpl) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
}

func (s *SweeperImpl) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce runs a single tick. A panicking tick is logged and the loop goes on.
func (s *SweeperImpl) runOnce() (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweeper %s panicked: %v", s.name, r)
			s.logger.Error("sweep failed", "error", err)
		}
	}()

	start := s.now()
	n = s.tick(start)
	if n > 0 {
		s.logger.Debug("sweep done", "affected", n, "took", s.now().Sub(start).String())
	}
	return n, nil
}

func (s *SweeperImpl) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
