package worker

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"inboxpilot/utils"
)

// Clock abstracts time so loop cadence can be driven synthetically in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Loop is one recurring job. The next timer is armed only after Fn returns,
// so a slow run never overlaps the next one; the effective delay is
// BaseInterval plus or minus half the JitterWindow.
type Loop struct {
	Name         string
	InitialDelay time.Duration
	BaseInterval time.Duration
	JitterWindow time.Duration
	Fn           func(ctx context.Context) error
}

// Scheduler runs a set of loops until its context is canceled. A failing
// loop logs and rearms; it never stops the scheduler.
type Scheduler struct {
	clock  Clock
	logger *log.Logger
	loops  []Loop
}

func NewScheduler(clock Clock, loops ...Loop) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		clock:  clock,
		logger: log.New(os.Stdout, "WORKER: ", log.Ldate|log.Ltime|log.Lshortfile),
		loops:  loops,
	}
}

// Start launches every loop in its own goroutine and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, loop := range s.loops {
		go s.run(ctx, loop)
	}
}

func (s *Scheduler) run(ctx context.Context, loop Loop) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(loop.Name))))

	s.logger.Printf("⏱️ Loop %s armed (initial delay %s, interval %s)", loop.Name, loop.InitialDelay, loop.BaseInterval)

	delay := loop.InitialDelay
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("⏹️ Loop %s stopped", loop.Name)
			return
		case <-s.clock.After(delay):
		}
		if ctx.Err() != nil {
			s.logger.Printf("⏹️ Loop %s stopped", loop.Name)
			return
		}

		started := s.clock.Now()
		if err := loop.Fn(ctx); err != nil {
			utils.LogError("worker_loop_failed", err, map[string]interface{}{
				"loop": loop.Name,
			})
		} else {
			s.logger.Printf("✅ Loop %s completed in %s", loop.Name, s.clock.Now().Sub(started))
		}

		delay = jittered(loop.BaseInterval, loop.JitterWindow, rng)
	}
}

// jittered spreads the interval uniformly over base ± window/2 so the loops
// drift apart instead of synchronizing against the mail server.
func jittered(base, window time.Duration, rng *rand.Rand) time.Duration {
	if window <= 0 {
		return base
	}
	offset := time.Duration(rng.Int63n(int64(window))) - window/2
	d := base + offset
	if d < time.Second {
		d = time.Second
	}
	return d
}
