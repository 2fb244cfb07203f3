package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/engine"
	errs "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
	"options-analyzer/internal/notify"
	"options-analyzer/internal/stream"
	"options-analyzer/pkg/utils"
)

// fakeSource serves canned snapshots and then reports exhaustion.
type fakeSource struct {
	snaps   []*models.OptionChainSnapshot
	next    int
	fetches atomic.Int64
	err     error
}

func (f *fakeSource) Fetch(ctx context.Context) (*models.OptionChainSnapshot, error) {
	f.fetches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.next >= len(f.snaps) {
		return nil, errs.ErrDataNotFound
	}
	s := f.snaps[f.next]
	f.next++
	return s, nil
}

func (f *fakeSource) Close() error { return nil }

// countingNotifier records error escalations.
type countingNotifier struct {
	errorsSent atomic.Int64
}

func (n *countingNotifier) Send(ctx context.Context, notif notify.Notification) error { return nil }
func (n *countingNotifier) SendSignal(ctx context.Context, symbol string, spot float64, sig *analysis.Signal) error {
	return nil
}
func (n *countingNotifier) SendDailySummary(ctx context.Context, s *notify.DailySummary) error {
	return nil
}
func (n *countingNotifier) SendError(ctx context.Context, err error, context string) error {
	n.errorsSent.Add(1)
	return nil
}

func replaySnapshot(i int) *models.OptionChainSnapshot {
	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	return &models.OptionChainSnapshot{
		Symbol:       "NIFTY",
		Timestamp:    base.Add(time.Duration(i) * 2 * time.Minute),
		SpotPrice:    20000 + float64(i),
		ExpiryDate:   base.Add(5 * 24 * time.Hour),
		DaysToExpiry: 5,
		Strikes: []models.StrikeRow{
			{
				StrikePrice: 20000,
				Call:        &models.OptionQuote{LTP: 120, OI: 100000, Volume: 5000, IV: 15, BidPrice: 119, BidQty: 100, AskPrice: 121, AskQty: 100},
				Put:         &models.OptionQuote{LTP: 110, OI: 100000, Volume: 5000, IV: 15, BidPrice: 109, BidQty: 100, AskPrice: 111, AskQty: 100},
			},
		},
	}
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Location = time.UTC
	e, err := engine.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

// allDaySession keeps the gate open regardless of the wall clock.
func allDaySession() utils.Session {
	return utils.Session{Loc: time.UTC, OpenHour: 0, OpenMin: 0, CloseHour: 23, CloseMin: 59}
}

func TestRunStopsWhenReplayExhausted(t *testing.T) {
	src := &fakeSource{snaps: []*models.OptionChainSnapshot{
		replaySnapshot(0), replaySnapshot(1), replaySnapshot(2),
	}}

	bus := stream.NewBus()
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	bus.Start(busCtx)
	defer bus.Stop()
	results := bus.Subscribe("test")

	cfg := Config{Interval: 10 * time.Millisecond, FetchTimeout: time.Second, MaxErrorStreak: 3}
	p := New(cfg, src, testEngine(t), bus, allDaySession(), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on exhaustion")
	}

	if got := p.Stats().Ticks; got != 3 {
		t.Errorf("ticks = %d, want 3", got)
	}

	var delivered int
	for delivered < 3 {
		select {
		case <-results:
			delivered++
		case <-time.After(2 * time.Second):
			t.Fatalf("bus delivered %d of 3 results", delivered)
		}
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	// A weekend-empty session keeps the poller idle until cancelled.
	src := &fakeSource{err: errors.New("should not be called")}
	bus := stream.NewBus()

	cfg := Config{Interval: 10 * time.Millisecond, FetchTimeout: time.Second, MaxErrorStreak: 3, MarketHoursOnly: true}
	closed := utils.Session{Loc: time.UTC} // zero-width window, never open
	p := New(cfg, src, testEngine(t), bus, closed, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if src.fetches.Load() != 0 {
		t.Errorf("fetched %d times while the market was closed", src.fetches.Load())
	}
}

func TestPollSkipsClosedMarket(t *testing.T) {
	src := &fakeSource{snaps: []*models.OptionChainSnapshot{replaySnapshot(0)}}
	cfg := Config{Interval: time.Minute, FetchTimeout: time.Second, MaxErrorStreak: 3, MarketHoursOnly: true}
	closed := utils.Session{Loc: time.UTC}
	p := New(cfg, src, testEngine(t), stream.NewBus(), closed, zerolog.Nop())

	if err := p.poll(context.Background()); !errs.Is(err, errs.ErrMarketClosed) {
		t.Errorf("poll returned %v, want ErrMarketClosed", err)
	}
	if src.fetches.Load() != 0 {
		t.Error("source fetched despite closed market")
	}
}

func TestErrorEscalationAtStreak(t *testing.T) {
	src := &fakeSource{err: errors.New("endpoint down")}
	cfg := Config{Interval: time.Minute, FetchTimeout: time.Second, MaxErrorStreak: 2}
	p := New(cfg, src, testEngine(t), stream.NewBus(), allDaySession(), zerolog.Nop())

	notifier := &countingNotifier{}
	p.SetNotifier(notifier)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := p.poll(ctx); err == nil {
			t.Fatalf("poll %d: expected fetch error", i)
		}
	}

	// Escalates exactly once, when the streak first hits the threshold.
	if got := notifier.errorsSent.Load(); got != 1 {
		t.Errorf("error notifications = %d, want 1", got)
	}
	if got := p.Stats().FetchErrors; got != 4 {
		t.Errorf("fetch errors = %d, want 4", got)
	}
}
