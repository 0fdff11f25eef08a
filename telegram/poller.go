package telegram

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"inboxpilot/config"
	"inboxpilot/utils"
)

// UpdateSource is the inbound half of the chat transport.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error)
}

// Poller runs the long-poll loop against the Bot API. Only one consumer may
// hold a bot's getUpdates session; when the API reports a conflict the
// poller backs off exponentially, and after enough consecutive conflicts it
// concedes the session to the other instance and drops to a passive cadence
// for good.
type Poller struct {
	source   UpdateSource
	resolver *Resolver
	cfg      config.TelegramConfig
	logger   *log.Logger

	inFlight atomic.Bool
	offset   int64

	// sleep is swapped out in tests to observe retry waits.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewPoller(source UpdateSource, resolver *Resolver, cfg config.TelegramConfig) *Poller {
	return &Poller{
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		logger:   log.New(os.Stdout, "TELEGRAM: ", log.Ldate|log.Ltime|log.Lshortfile),
		sleep:    sleep,
	}
}

const pollTimeoutSeconds = 30

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	backoff := p.cfg.BackoffBase
	conflicts := 0
	passive := false

	p.logger.Printf("📡 Long-poll loop started")
	for {
		if ctx.Err() != nil {
			p.logger.Printf("⏹️ Long-poll loop stopped")
			return
		}

		updates, err := p.pullOnce(ctx)
		switch {
		case err == nil:
			conflicts = 0
			backoff = p.cfg.BackoffBase
			for _, u := range updates {
				if u.UpdateID >= p.offset {
					p.offset = u.UpdateID + 1
				}
				if err := p.resolver.HandleUpdate(ctx, u); err != nil {
					utils.LogError("telegram_update_failed", err, map[string]interface{}{
						"update_id": u.UpdateID,
					})
				}
			}
			continue

		case errors.Is(err, ErrConflict):
			conflicts++
			if !passive && conflicts >= p.cfg.MaxConflicts {
				passive = true
				utils.LogEvent("telegram_passive_downgrade", map[string]interface{}{
					"conflicts": conflicts,
				})
				p.logger.Printf("🔻 %d consecutive conflicts, downgrading to passive cadence %s", conflicts, p.cfg.PassiveInterval)
			}
			if passive {
				if !p.sleep(ctx, p.cfg.PassiveInterval) {
					return
				}
				continue
			}
			wait := withJitter(backoff, rng)
			p.logger.Printf("⚠️ getUpdates conflict (%d in a row), backing off %s", conflicts, wait)
			if !p.sleep(ctx, wait) {
				return
			}
			backoff *= 2
			if backoff > p.cfg.BackoffCap {
				backoff = p.cfg.BackoffCap
			}
			continue

		case errors.Is(err, context.Canceled):
			return

		default:
			// Transient transport or API failure. Retry at the normal
			// cadence without escalating.
			utils.LogError("telegram_poll_failed", err, nil)
			if !p.sleep(ctx, p.cfg.BackoffBase) {
				return
			}
		}
	}
}

// pullOnce performs one long poll, guarded against concurrent pulls from
// this instance.
func (p *Poller) pullOnce(ctx context.Context) ([]Update, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, errors.New("telegram: pull already in flight")
	}
	defer p.inFlight.Store(false)
	return p.source.GetUpdates(ctx, p.offset, pollTimeoutSeconds)
}

// withJitter spreads the wait over [d, 1.5d) so competing instances do not
// retry in lockstep.
func withJitter(d time.Duration, rng *rand.Rand) time.Duration {
	return d + time.Duration(rng.Int63n(int64(d)/2+1))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
