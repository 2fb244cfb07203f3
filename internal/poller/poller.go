// Package poller drives the periodic fetch and analysis loop during
// market hours.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/engine"
	errs "options-analyzer/internal/errors"
	"options-analyzer/internal/feed"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/notify"
	"options-analyzer/internal/stream"
	"options-analyzer/pkg/utils"
)

// Config holds poller configuration.
type Config struct {
	// Interval between chain fetches.
	Interval time.Duration
	// FetchTimeout bounds a single fetch attempt.
	FetchTimeout time.Duration
	// MaxErrorStreak is how many consecutive fetch failures are tolerated
	// before an error notification goes out.
	MaxErrorStreak int
	// MarketHoursOnly skips polling outside the session window. Replay
	// feeds disable this.
	MarketHoursOnly bool
}

// DefaultConfig returns poller defaults matching the live feed cadence.
func DefaultConfig() Config {
	return Config{
		Interval:        2 * time.Minute,
		FetchTimeout:    30 * time.Second,
		MaxErrorStreak:  3,
		MarketHoursOnly: true,
	}
}

// Stats tracks poller activity.
type Stats struct {
	Ticks       int64
	FetchErrors int64
	LastTick    time.Time
	LastError   time.Time
}

// Poller repeatedly fetches the option chain, runs it through the engine
// and publishes results on the bus.
type Poller struct {
	cfg      Config
	src      feed.ChainSource
	eng      *engine.Engine
	bus      *stream.Bus
	session  utils.Session
	notifier notify.Notifier
	log      zerolog.Logger

	mu        sync.Mutex
	stats     Stats
	errStreak int
}

// New creates a poller. The notifier may be nil.
func New(cfg Config, src feed.ChainSource, eng *engine.Engine, bus *stream.Bus, session utils.Session, log zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.MaxErrorStreak <= 0 {
		cfg.MaxErrorStreak = DefaultConfig().MaxErrorStreak
	}
	return &Poller{
		cfg:     cfg,
		src:     src,
		eng:     eng,
		bus:     bus,
		session: session,
		log:     logging.WithComponent(log, "poller"),
	}
}

// SetNotifier attaches a notifier for error escalation.
func (p *Poller) SetNotifier(n notify.Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifier = n
}

// Stats returns a copy of the current poller stats.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run polls until the context is cancelled. It performs an immediate
// first poll and then follows the configured interval.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil && errs.Is(err, errs.ErrDataNotFound) {
				// Replay feed exhausted
				p.log.Info().Msg("feed exhausted, stopping poller")
				return nil
			}
		}
	}
}

// poll runs one fetch-analyze-publish cycle.
func (p *Poller) poll(ctx context.Context) error {
	now := time.Now().In(p.session.Loc)
	if p.cfg.MarketHoursOnly && !p.session.IsOpen(now) {
		p.log.Debug().Time("next_open", p.session.NextOpen(now)).Msg("market closed, skipping poll")
		return errs.ErrMarketClosed
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	snap, err := p.src.Fetch(fetchCtx)
	cancel()
	if err != nil {
		p.recordError(ctx, err)
		return err
	}

	result, err := p.eng.ProcessSnapshot(ctx, snap)
	if err != nil {
		p.recordError(ctx, err)
		return err
	}

	p.bus.Publish(result)

	p.mu.Lock()
	p.stats.Ticks++
	p.stats.LastTick = result.Timestamp
	p.errStreak = 0
	p.mu.Unlock()

	return nil
}

// recordError counts a failure and escalates after a sustained streak.
func (p *Poller) recordError(ctx context.Context, err error) {
	p.mu.Lock()
	p.stats.FetchErrors++
	p.stats.LastError = time.Now()
	p.errStreak++
	streak := p.errStreak
	notifier := p.notifier
	p.mu.Unlock()

	p.log.Warn().Err(err).Int("streak", streak).Msg("poll cycle failed")

	if notifier != nil && streak == p.cfg.MaxErrorStreak {
		if nerr := notifier.SendError(ctx, err, "chain polling"); nerr != nil {
			p.log.Warn().Err(nerr).Msg("error notification failed")
		}
	}
}
