// Package sync runs the five Periodic Synchronizer loops (§4.6), each
// idempotent and guarded against overlapping runs by a single-flight lock,
// in the teacher's idiom of plain sync primitives rather than an external
// scheduler library.
package sync

import (
	"context"
	"sync"
	"time"

	"cryptoMegaBot/internal/ports"
)

// Loop is one periodic synchronizer job.
type Loop interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// guardedLoop wraps a Loop with a single-flight mutex (TryLock) so overlapping
// ticks are skipped rather than queued.
type guardedLoop struct {
	loop    Loop
	running sync.Mutex
}

func (g *guardedLoop) tryRun(ctx context.Context, logger ports.Logger) {
	if !g.running.TryLock() {
		logger.Debug(ctx, "skipping tick, previous run still in flight", map[string]interface{}{"loop": g.loop.Name()})
		return
	}
	defer g.running.Unlock()

	start := time.Now()
	if err := g.loop.Run(ctx); err != nil {
		logger.Error(ctx, err, "periodic loop run failed", map[string]interface{}{"loop": g.loop.Name()})
		return
	}
	logger.Debug(ctx, "periodic loop run completed", map[string]interface{}{"loop": g.loop.Name(), "duration": time.Since(start).String()})
}

// Scheduler drives every registered Loop on its own ticker.
type Scheduler struct {
	logger ports.Logger
	loops  map[string]*guardedLoop
}

// NewScheduler builds a Scheduler over the given loops.
func NewScheduler(logger ports.Logger, loops ...Loop) *Scheduler {
	s := &Scheduler{logger: logger, loops: make(map[string]*guardedLoop, len(loops))}
	for _, l := range loops {
		s.loops[l.Name()] = &guardedLoop{loop: l}
	}
	return s
}

// Run starts one ticker goroutine per loop and blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, g := range s.loops {
		wg.Add(1)
		go func(g *guardedLoop) {
			defer wg.Done()
			ticker := time.NewTicker(g.loop.Interval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					g.tryRun(ctx, s.logger)
				}
			}
		}(g)
	}
	wg.Wait()
}

// TriggerNow runs the named loop immediately, out of band from its ticker,
// for the ops HTTP surface's manual-trigger endpoint. Idempotent: skipped
// if a run is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) bool {
	g, ok := s.loops[name]
	if !ok {
		return false
	}
	go g.tryRun(ctx, s.logger)
	return true
}

// Status reports whether each registered loop is currently running.
func (s *Scheduler) Status() map[string]bool {
	out := make(map[string]bool, len(s.loops))
	for name, g := range s.loops {
		locked := g.running.TryLock()
		if locked {
			g.running.Unlock()
		}
		out[name] = !locked
	}
	return out
}
