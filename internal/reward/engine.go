package reward

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/metrics"
	"github.com/mythorath/m2p/internal/pool"
)

// Config holds the scheduler knobs. Zero values are filled with the
// defaults used by the original deployment.
type Config struct {
	Interval       time.Duration   // wall time between cycle starts
	RequestTimeout time.Duration   // per provider request
	DrainTimeout   time.Duration   // bound on waiting for in-flight units at shutdown
	MaxConcurrent  int             // worker bound across (account, source) units
	MinPayoutDelta decimal.Decimal // deltas below this are treated as noise
	APPerADVC      decimal.Decimal // credit conversion rate
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.MinPayoutDelta.IsZero() {
		c.MinPayoutDelta = decimal.RequireFromString("0.0001")
	}
	if c.APPerADVC.IsZero() {
		c.APPerADVC = decimal.New(100, 0)
	}
}

// Engine drives fixed-interval poll cycles over every eligible account and
// enabled source. All coordination between concurrent units of work is
// pushed into the store's atomic ledger insert, so multiple engine
// instances can run the same cycle without double-crediting.
type Engine struct {
	store   Store
	fetcher Fetcher
	sink    Sink
	guard   Guard
	logger  *slog.Logger
	cfg     Config
	sources []pool.Source
	cycle   *CycleMetrics
}

func NewEngine(store Store, fetcher Fetcher, sink Sink, guard Guard, sources []pool.Source, cfg Config, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:   store,
		fetcher: fetcher,
		sink:    sink,
		guard:   guard,
		logger:  logger,
		cfg:     cfg,
		sources: sources,
		cycle:   NewCycleMetrics(),
	}
}

// Sources returns the enabled source names, for the diagnostics surface.
func (e *Engine) Sources() []string {
	names := make([]string, 0, len(e.sources))
	for _, s := range e.sources {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}

// Metrics returns the in-memory cycle aggregate.
func (e *Engine) Metrics() *CycleMetrics { return e.cycle }

// Run executes poll cycles until ctx is cancelled. A cycle that overruns the
// interval is followed immediately by the next one. On cancellation no new
// units are issued and in-flight ones are allowed to finish, bounded by
// DrainTimeout, so no snapshot update is left half-applied.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("reward engine started",
		"interval", e.cfg.Interval.String(),
		"sources", e.Sources(),
		"max_concurrent", e.cfg.MaxConcurrent,
	)

	for {
		start := time.Now()
		e.runCycle(ctx)

		sleep := e.cfg.Interval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("reward engine stopped")
			return
		case <-timer.C:
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	accounts, err := e.store.ListEligibleAccounts(ctx)
	if err != nil {
		e.logger.Error("list eligible accounts failed", "error", err)
		return
	}
	metrics.AccountsEligible.Set(float64(len(accounts)))

	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	var wg sync.WaitGroup

issue:
	for _, acct := range accounts {
		for _, src := range e.sources {
			if !src.Enabled {
				continue
			}
			if ctx.Err() != nil {
				break issue
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(acct Account, src pool.Source) {
				defer wg.Done()
				defer func() { <-sem }()
				e.pollOne(ctx, acct, src)
			}(acct, src)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.DrainTimeout):
		e.logger.Warn("cycle drain timed out", "timeout", e.cfg.DrainTimeout.String())
	}

	e.cycle.recordCycle()
}

// pollOne is one failure domain: fetch, detect, apply, notify, and always
// advance the snapshot unless the ledger write failed. Errors are logged and
// counted here and never propagate to other (account, source) pairs.
func (e *Engine) pollOne(parent context.Context, acct Account, src pool.Source) {
	// Shutdown must not cancel a unit mid-flight; it is bounded by its own
	// deadline instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.cfg.RequestTimeout+15*time.Second)
	defer cancel()

	fetchCtx, cancelFetch := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancelFetch()

	start := time.Now()
	stats, err := e.fetcher.Fetch(fetchCtx, src, acct.Wallet)
	latency := time.Since(start)
	metrics.PollDuration.WithLabelValues(src.Name).Observe(latency.Seconds())

	if err != nil {
		e.failPoll(acct, src, latency, classify(err), err)
		return
	}

	prev, err := e.store.GetSnapshot(ctx, acct.ID, src.Name)
	if err != nil {
		e.failPoll(acct, src, latency, "storage", err)
		return
	}

	observedAt := time.Now()
	if delta := Detect(prev, stats.CumulativePaid, e.cfg.MinPayoutDelta); delta != nil {
		res, err := e.store.ApplyReward(ctx, ApplyParams{
			AccountID:      acct.ID,
			Source:         src.Name,
			CumulativePaid: stats.CumulativePaid,
			PreviousPaid:   prev.CumulativePaid,
			Delta:          delta.Amount,
			AP:             delta.Amount.Mul(e.cfg.APPerADVC),
			ObservedAt:     observedAt,
		})
		if err != nil {
			// Snapshot deliberately not advanced: the same baseline is
			// retried next cycle so the payout cannot be dropped.
			e.failPoll(acct, src, latency, "storage", err)
			return
		}
		if !res.Duplicate {
			e.cycle.recordReward()
			metrics.RewardsDetectedTotal.WithLabelValues(src.Name).Inc()
			e.logger.Info("reward detected",
				"wallet", acct.Wallet,
				"source", src.Name,
				"delta", res.Entry.Delta.String(),
				"ap", res.Entry.AP.String(),
				"cumulative_paid", res.Entry.CumulativePaid.String(),
			)
			e.notify(ctx, acct, src, res)
		}
	}

	if err := e.store.UpsertSnapshot(ctx, Snapshot{
		AccountID:      acct.ID,
		Source:         src.Name,
		CumulativePaid: stats.CumulativePaid,
		Balance:        stats.Balance,
		Aux:            stats.Aux,
		ObservedAt:     observedAt,
	}); err != nil {
		e.failPoll(acct, src, latency, "storage", err)
		return
	}

	e.cycle.recordPoll(src.Name, latency, true)
	metrics.PollTotal.WithLabelValues(src.Name, "success").Inc()
	metrics.PollLastSuccess.WithLabelValues(src.Name).SetToCurrentTime()
}

func (e *Engine) failPoll(acct Account, src pool.Source, latency time.Duration, kind string, err error) {
	e.cycle.recordPoll(src.Name, latency, false)
	metrics.PollTotal.WithLabelValues(src.Name, kind).Inc()
	e.logger.Error("poll failed",
		"wallet", acct.Wallet,
		"source", src.Name,
		"kind", kind,
		"error", err,
	)
}

// notify pushes the reward event at most once across engine instances.
// A lost notification is only a timeliness problem, the credit is durable.
func (e *Engine) notify(ctx context.Context, acct Account, src pool.Source, res *ApplyResult) {
	ev := Event{
		Wallet:     acct.Wallet,
		Username:   acct.Username,
		Source:     src.Name,
		Amount:     res.Entry.Delta,
		AP:         res.Entry.AP,
		TotalMined: res.TotalMined,
		TotalAP:    res.TotalAP,
		ObservedAt: res.Entry.ObservedAt,
	}

	if e.guard != nil {
		key := fmt.Sprintf("notify:%s:%s:%s", acct.Wallet, src.Name, res.Entry.CumulativePaid.String())
		if e.guard.AlreadySent(ctx, key) {
			metrics.NotificationsDedupedTotal.WithLabelValues(src.Name).Inc()
			return
		}
		e.guard.Record(ctx, key)
	}

	if e.sink == nil {
		return
	}
	if err := e.sink.Notify(ctx, ev); err != nil {
		metrics.NotificationsFailedTotal.WithLabelValues(src.Name).Inc()
		e.logger.Error("notify failed", "wallet", acct.Wallet, "source", src.Name, "error", err)
		return
	}
	metrics.NotificationsSentTotal.WithLabelValues(src.Name).Inc()
}

func classify(err error) string {
	switch {
	case pool.IsMalformed(err):
		return "malformed"
	case pool.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
