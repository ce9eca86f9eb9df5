// Package progress simulates a progress indicator for backend calls that
// report none. The percentage advances with elapsed time toward, but never
// past, Ceiling and only a real response moves it to 100.
package progress

import (
	"sync"
	"time"
)

// Ceiling is the highest percentage the simulation reaches on its own.
const Ceiling = 90

// DefaultTick is how often the simulation reports.
const DefaultTick = 500 * time.Millisecond

// ReportFunc receives each new percentage.
type ReportFunc func(pct int)

// Simulator drives one simulated progress bar. The zero value is not usable;
// create one with New.
type Simulator struct {
	report ReportFunc
	tick   time.Duration
	now    func() time.Time

	mu   sync.Mutex
	pct  int
	stop chan struct{}
	done chan struct{}
}

// New creates a Simulator. tick <= 0 uses DefaultTick.
func New(report ReportFunc, tick time.Duration) *Simulator {
	if tick <= 0 {
		tick = DefaultTick
	}
	if report == nil {
		report = func(int) {}
	}
	return &Simulator{report: report, tick: tick, now: time.Now}
}

// Start resets to 0 and advances linearly so Ceiling is reached after
// expected. A running simulation is stopped first.
func (s *Simulator) Start(expected time.Duration) {
	s.halt()
	if expected <= 0 {
		expected = time.Minute
	}

	s.mu.Lock()
	s.pct = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.report(0)
	go s.run(expected, stop, done)
}

func (s *Simulator) run(expected time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	start := s.now()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pct := Estimate(s.now().Sub(start), expected)
			s.mu.Lock()
			changed := pct > s.pct
			if changed {
				s.pct = pct
			}
			s.mu.Unlock()
			if changed {
				s.report(pct)
			}
			if pct >= Ceiling {
				return
			}
		}
	}
}

// Complete stops the simulation and snaps to 100.
func (s *Simulator) Complete() {
	s.finish(100)
}

// Fail stops the simulation and resets to 0.
func (s *Simulator) Fail() {
	s.finish(0)
}

// Percent returns the last reported percentage.
func (s *Simulator) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pct
}

func (s *Simulator) finish(pct int) {
	s.halt()
	s.mu.Lock()
	s.pct = pct
	s.mu.Unlock()
	s.report(pct)
}

// halt stops the goroutine, if any, and waits for it to exit.
func (s *Simulator) halt() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Estimate maps elapsed time onto 0..Ceiling.
func Estimate(elapsed, expected time.Duration) int {
	if elapsed <= 0 || expected <= 0 {
		return 0
	}
	pct := int(float64(Ceiling) * float64(elapsed) / float64(expected))
	if pct > Ceiling {
		return Ceiling
	}
	return pct
}
