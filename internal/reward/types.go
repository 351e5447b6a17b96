package reward

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/pool"
)

// Account is a registered wallet eligible for reward detection. Totals are
// mutated only through Store.ApplyReward.
type Account struct {
	ID              int64
	Wallet          string
	Username        string
	TotalMined      decimal.Decimal
	TotalAP         decimal.Decimal
	LastRewardAt    *time.Time
	ConsecutiveDays int
}

// Snapshot is the last-observed cumulative-paid baseline for one
// (account, source) pair.
type Snapshot struct {
	AccountID      int64
	Source         string
	CumulativePaid decimal.Decimal
	Balance        decimal.NullDecimal
	Aux            map[string]any
	ObservedAt     time.Time
}

// Delta is a newly detected payout.
type Delta struct {
	Amount decimal.Decimal
}

// LedgerEntry is the immutable record of one credited reward.
// (AccountID, Source, CumulativePaid) is the idempotency key.
type LedgerEntry struct {
	ID             int64
	AccountID      int64
	Source         string
	CumulativePaid decimal.Decimal
	PreviousPaid   decimal.Decimal
	Delta          decimal.Decimal
	AP             decimal.Decimal
	ObservedAt     time.Time
}

// ApplyParams carries one detected delta into the store.
type ApplyParams struct {
	AccountID      int64
	Source         string
	CumulativePaid decimal.Decimal
	PreviousPaid   decimal.Decimal
	Delta          decimal.Decimal
	AP             decimal.Decimal
	ObservedAt     time.Time
}

// ApplyResult reports what the store did with a delta. Duplicate means the
// ledger key already existed and nothing was credited.
type ApplyResult struct {
	Entry      LedgerEntry
	Duplicate  bool
	TotalMined decimal.Decimal
	TotalAP    decimal.Decimal
}

// Store is the engine's system of record. Implementations must make
// ApplyReward atomic and idempotent on (account, source, cumulativePaid) so
// that concurrent scheduler instances cannot double-credit.
type Store interface {
	ListEligibleAccounts(ctx context.Context) ([]Account, error)
	GetSnapshot(ctx context.Context, accountID int64, source string) (*Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap Snapshot) error
	ApplyReward(ctx context.Context, p ApplyParams) (*ApplyResult, error)
}

// Fetcher retrieves the canonical stats record for one (source, wallet) pair.
// Implemented by pool.Client.
type Fetcher interface {
	Fetch(ctx context.Context, src pool.Source, wallet string) (pool.Stats, error)
}

// Event is pushed to the Sink for every newly credited reward.
type Event struct {
	Wallet     string          `json:"wallet"`
	Username   string          `json:"username,omitempty"`
	Source     string          `json:"source"`
	Amount     decimal.Decimal `json:"amount"`
	AP         decimal.Decimal `json:"ap"`
	TotalMined decimal.Decimal `json:"total_mined"`
	TotalAP    decimal.Decimal `json:"total_ap"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Sink receives reward events. Delivery is best-effort: the ledger row and
// totals are already durable before Notify is called.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Guard suppresses duplicate notifications across scheduler instances.
// Implemented by dedup.Deduplicator.
type Guard interface {
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string)
}
