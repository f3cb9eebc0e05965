package service

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const sweepTimeout = time.Minute

// SweepFunc is one expiry pass.
type SweepFunc func(ctx context.Context) (SweepResult, error)

// Sweeper runs SweepFunc on a fixed interval. A tick that arrives while a
// pass is still running is skipped, never queued.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	running  atomic.Bool
	wg       sync.WaitGroup
}

func NewSweeper(sweep SweepFunc, interval time.Duration) *Sweeper {
	return &Sweeper{sweep: sweep, interval: interval}
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.RunOnce(ctx)
				}()
			}
		}
	}()
}

// RunOnce performs a pass unless one is in progress. It reports whether it ran.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("subscription sweeper: previous pass still running, skipping")
		return false
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	if _, err := s.sweep(runCtx); err != nil {
		log.Printf("subscription sweeper: %v", err)
	}
	return true
}

// Wait blocks until the loop and any pass in flight have returned.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}
