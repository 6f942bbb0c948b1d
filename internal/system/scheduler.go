package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/timeutil"
)

var timeCriticalPhases = [...]Phase{PhaseDynamics, PhaseTransmit, PhaseReceive, PhaseProcess}

// Scheduler owns the phase order of the pipeline.
type Scheduler struct {
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	mu           sync.Mutex
	timeCritical []Component
	background   []Component
	parallelism  int

	// frame counters, guarded by mu
	frames  uint64
	updates uint64
	simTime float64
	// sim time not yet handed to the background lane, guarded by mu
	pending float64
}

// NewScheduler returns an empty scheduler. A nil clock uses the wall clock.
func NewScheduler(clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{clock: clock}
}

// SetMetrics attaches frame-duration metrics; nil disables them.
func (s *Scheduler) SetMetrics(m *monitoring.Metrics) { s.metrics = m }

// SetParallelism bounds the goroutines used per phase; n <= 0 is unbounded.
func (s *Scheduler) SetParallelism(n int) {
	s.mu.Lock()
	s.parallelism = n
	s.mu.Unlock()
}

// AddTimeCritical registers components on the time-critical lane.
func (s *Scheduler) AddTimeCritical(cs ...Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		if c != nil {
			s.timeCritical = append(s.timeCritical, c)
			diagf("time-critical: %s %v", c.Name(), Phases(c))
		}
	}
}

// AddBackground registers components on the background lane. They run
// in the order given.
func (s *Scheduler) AddBackground(cs ...Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		if c != nil {
			s.background = append(s.background, c)
			diagf("background: %s %v", c.Name(), Phases(c))
		}
	}
}

// Components returns the registered components, time-critical lane first.
func (s *Scheduler) Components() []Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Component, 0, len(s.timeCritical)+len(s.background))
	out = append(out, s.timeCritical...)
	return append(out, s.background...)
}

// Frame runs one time-critical frame of dt seconds.
func (s *Scheduler) Frame(dt float64) {
	start := s.clock.Now()
	s.mu.Lock()
	comps := append([]Component(nil), s.timeCritical...)
	limit := s.parallelism
	s.mu.Unlock()

	for _, p := range timeCriticalPhases {
		runPhase(comps, p, dt, limit)
	}

	s.mu.Lock()
	s.frames++
	s.simTime += dt
	s.mu.Unlock()
	s.metrics.ObserveFrame("time_critical", s.clock.Since(start).Seconds())
}

// Update runs the background lane once.
func (s *Scheduler) Update(dt float64) {
	start := s.clock.Now()
	s.mu.Lock()
	comps := append([]Component(nil), s.background...)
	s.mu.Unlock()

	for _, c := range comps {
		call(c, PhaseUpdate, dt)
	}

	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	s.metrics.ObserveFrame("background", s.clock.Since(start).Seconds())
}

// Step runs one frame followed by one background update on the calling
// goroutine.
func (s *Scheduler) Step(dt float64) {
	s.Frame(dt)
	s.Update(dt)
}

// RunFrames steps n times.
func (s *Scheduler) RunFrames(n int, dt float64) {
	for i := 0; i < n; i++ {
		s.Step(dt)
	}
}

// runPhase calls p on every component that implements it and waits for
// all of them.
func runPhase(comps []Component, p Phase, dt float64, limit int) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, c := range comps {
		if !implements(c, p) {
			continue
		}
		g.Go(func() error {
			call(c, p, dt)
			return nil
		})
	}
	_ = g.Wait()
}

// Reset resets every component, time-critical lane first, and zeroes the
// frame counters. Callers must not run frames concurrently with Reset.
func (s *Scheduler) Reset() {
	for _, c := range s.Components() {
		c.Reset()
	}
	s.mu.Lock()
	s.frames, s.updates, s.simTime, s.pending = 0, 0, 0, 0
	s.mu.Unlock()
	opsf("pipeline reset")
}

// Stats is a snapshot of the frame counters.
type Stats struct {
	Frames  uint64
	Updates uint64
	SimTime float64 // s
}

// Stats returns the frame counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Frames: s.frames, Updates: s.updates, SimTime: s.simTime}
}

// ErrOverrun is returned by RunRealTime when a frame outlasts its period
// and the run was configured to treat that as fatal.
var ErrOverrun = errors.New("frame overrun")

// RealTimeOptions configures RunRealTime.
type RealTimeOptions struct {
	Period        time.Duration // wall time per frame
	Frames        int           // 0 runs until ctx is done
	FailOnOverrun bool
}

// RunRealTime paces the time-critical lane on a ticker and runs the
// background lane on its own goroutine at the same rate. It returns when
// ctx is done or the frame budget is spent. Cancellation is checked
// between frames only.
//
// When the background lane falls behind, frames keep running and their
// sim time accumulates; the next update receives all of it, so track ages
// follow sim time.
func (s *Scheduler) RunRealTime(ctx context.Context, opts RealTimeOptions) error {
	if opts.Period <= 0 {
		return fmt.Errorf("real-time period must be positive, got %v", opts.Period)
	}
	dt := opts.Period.Seconds()
	g, ctx := errgroup.WithContext(ctx)
	kick := make(chan struct{}, 1)

	g.Go(func() error {
		defer close(kick)
		tk := s.clock.NewTicker(opts.Period)
		defer tk.Stop()
		for n := 0; opts.Frames == 0 || n < opts.Frames; n++ {
			select {
			case <-ctx.Done():
				return nil
			case <-tk.C():
			}
			start := s.clock.Now()
			s.Frame(dt)
			if took := s.clock.Since(start); took > opts.Period {
				opsf("frame %d overran: %v > %v", n, took, opts.Period)
				if opts.FailOnOverrun {
					return fmt.Errorf("frame %d took %v: %w", n, took, ErrOverrun)
				}
			}
			s.mu.Lock()
			s.pending += dt
			s.mu.Unlock()
			select {
			case kick <- struct{}{}:
			default:
				tracef("background lane behind at frame %d", n)
			}
		}
		return nil
	})

	g.Go(func() error {
		for range kick {
			s.mu.Lock()
			elapsed := s.pending
			s.pending = 0
			s.mu.Unlock()
			if elapsed > 0 {
				s.Update(elapsed)
			}
		}
		return nil
	})

	return g.Wait()
}
