package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/reward"
)

// Store is the system of record: accounts, per-(account, source) snapshots
// and the append-only reward ledger. All idempotency lives here, in the
// ledger's unique key, so multiple engine instances can poll concurrently.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Accounts ---

// ListEligibleAccounts returns verified, active accounts as a
// snapshot-in-time for one poll cycle.
func (s *Store) ListEligibleAccounts(ctx context.Context) ([]reward.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_address, username, total_mined::text, total_ap::text,
		       last_reward_at, consecutive_mining_days
		FROM players
		WHERE verified = true AND active = true
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts: %w", err)
	}
	defer rows.Close()

	var accounts []reward.Account
	for rows.Next() {
		var (
			a            reward.Account
			mined, ap    string
			lastRewardAt *time.Time
		)
		if err := rows.Scan(&a.ID, &a.Wallet, &a.Username, &mined, &ap, &lastRewardAt, &a.ConsecutiveDays); err != nil {
			return nil, err
		}
		if a.TotalMined, err = decimal.NewFromString(mined); err != nil {
			return nil, fmt.Errorf("account %d total_mined: %w", a.ID, err)
		}
		if a.TotalAP, err = decimal.NewFromString(ap); err != nil {
			return nil, fmt.Errorf("account %d total_ap: %w", a.ID, err)
		}
		a.LastRewardAt = lastRewardAt
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// --- Snapshots ---

func (s *Store) GetSnapshot(ctx context.Context, accountID int64, source string) (*reward.Snapshot, error) {
	var (
		snap    reward.Snapshot
		paid    string
		balance *string
		aux     []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT account_id, source, cumulative_paid::text, balance::text, aux, observed_at
		FROM pool_snapshots
		WHERE account_id = $1 AND source = $2`, accountID, source).
		Scan(&snap.AccountID, &snap.Source, &paid, &balance, &aux, &snap.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	if snap.CumulativePaid, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("snapshot cumulative_paid: %w", err)
	}
	if balance != nil {
		d, err := decimal.NewFromString(*balance)
		if err != nil {
			return nil, fmt.Errorf("snapshot balance: %w", err)
		}
		snap.Balance = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if len(aux) > 0 {
		_ = json.Unmarshal(aux, &snap.Aux)
	}
	return &snap, nil
}

// UpsertSnapshot unconditionally replaces the baseline for the pair, even
// when the new value is lower or unchanged, so the "last checked" marker
// always advances.
func (s *Store) UpsertSnapshot(ctx context.Context, snap reward.Snapshot) error {
	var balance *string
	if snap.Balance.Valid {
		v := snap.Balance.Decimal.String()
		balance = &v
	}
	aux, err := json.Marshal(snap.Aux)
	if err != nil {
		aux = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (account_id, source, cumulative_paid, balance, aux, observed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::jsonb, $6)
		ON CONFLICT (account_id, source) DO UPDATE
			SET cumulative_paid = EXCLUDED.cumulative_paid,
			    balance = EXCLUDED.balance,
			    aux = EXCLUDED.aux,
			    observed_at = EXCLUDED.observed_at`,
		snap.AccountID, snap.Source, snap.CumulativePaid.String(), balance, string(aux), snap.ObservedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// --- Reward ledger ---

// ApplyReward runs the whole credit as one transaction: insert the ledger
// row keyed by (account, source, cumulative_paid), and only if that insert
// took effect, bump the account totals, the streak and the daily rollup.
// A duplicate key is the expected idempotency-guard outcome: the existing
// entry is returned with Duplicate = true and nothing is re-credited.
func (s *Store) ApplyReward(ctx context.Context, p reward.ApplyParams) (*reward.ApplyResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var entryID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO reward_ledger
			(account_id, source, cumulative_paid, previous_paid, delta, ap, observed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (account_id, source, cumulative_paid) DO NOTHING
		RETURNING id`,
		p.AccountID, p.Source, p.CumulativePaid.String(), p.PreviousPaid.String(),
		p.Delta.String(), p.AP.String(), p.ObservedAt).
		Scan(&entryID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Already applied by this or another instance.
		existing, totals, err := s.existingEntry(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &reward.ApplyResult{Entry: *existing, Duplicate: true, TotalMined: totals[0], TotalAP: totals[1]}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	streakDays, err := s.advanceStreak(ctx, tx, p.AccountID, p.ObservedAt)
	if err != nil {
		return nil, err
	}

	var mined, ap string
	err = tx.QueryRow(ctx, `
		UPDATE players
		SET total_mined = total_mined + $2::numeric,
		    total_ap = total_ap + $3::numeric,
		    last_reward_at = $4,
		    consecutive_mining_days = $5,
		    last_mining_date = $6
		WHERE id = $1
		RETURNING total_mined::text, total_ap::text`,
		p.AccountID, p.Delta.String(), p.AP.String(), p.ObservedAt, streakDays, p.ObservedAt.UTC().Truncate(24*time.Hour)).
		Scan(&mined, &ap)
	if err != nil {
		return nil, fmt.Errorf("update totals: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_mining_stats (account_id, day, total_mined, events_count)
		VALUES ($1, $2, $3::numeric, 1)
		ON CONFLICT (account_id, day) DO UPDATE
			SET total_mined = daily_mining_stats.total_mined + EXCLUDED.total_mined,
			    events_count = daily_mining_stats.events_count + 1`,
		p.AccountID, p.ObservedAt.UTC().Truncate(24*time.Hour), p.Delta.String())
	if err != nil {
		return nil, fmt.Errorf("update daily stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	totalMined, err := decimal.NewFromString(mined)
	if err != nil {
		return nil, fmt.Errorf("total_mined: %w", err)
	}
	totalAP, err := decimal.NewFromString(ap)
	if err != nil {
		return nil, fmt.Errorf("total_ap: %w", err)
	}

	return &reward.ApplyResult{
		Entry: reward.LedgerEntry{
			ID:             entryID,
			AccountID:      p.AccountID,
			Source:         p.Source,
			CumulativePaid: p.CumulativePaid,
			PreviousPaid:   p.PreviousPaid,
			Delta:          p.Delta,
			AP:             p.AP,
			ObservedAt:     p.ObservedAt,
		},
		TotalMined: totalMined,
		TotalAP:    totalAP,
	}, nil
}

func (s *Store) existingEntry(ctx context.Context, tx pgx.Tx, p reward.ApplyParams) (*reward.LedgerEntry, [2]decimal.Decimal, error) {
	var (
		e                     reward.LedgerEntry
		prev, delta, ap       string
		totalMinedS, totalAPS string
	)
	err := tx.QueryRow(ctx, `
		SELECT l.id, l.previous_paid::text, l.delta::text, l.ap::text, l.observed_at,
		       pl.total_mined::text, pl.total_ap::text
		FROM reward_ledger l
		JOIN players pl ON pl.id = l.account_id
		WHERE l.account_id = $1 AND l.source = $2 AND l.cumulative_paid = $3::numeric`,
		p.AccountID, p.Source, p.CumulativePaid.String()).
		Scan(&e.ID, &prev, &delta, &ap, &e.ObservedAt, &totalMinedS, &totalAPS)
	if err != nil {
		return nil, [2]decimal.Decimal{}, fmt.Errorf("load existing ledger entry: %w", err)
	}

	e.AccountID = p.AccountID
	e.Source = p.Source
	e.CumulativePaid = p.CumulativePaid
	if e.PreviousPaid, err = decimal.NewFromString(prev); err != nil {
		return nil, [2]decimal.Decimal{}, err
	}
	if e.Delta, err = decimal.NewFromString(delta); err != nil {
		return nil, [2]decimal.Decimal{}, err
	}
	if e.AP, err = decimal.NewFromString(ap); err != nil {
		return nil, [2]decimal.Decimal{}, err
	}
	totalMined, err := decimal.NewFromString(totalMinedS)
	if err != nil {
		return nil, [2]decimal.Decimal{}, err
	}
	totalAP, err := decimal.NewFromString(totalAPS)
	if err != nil {
		return nil, [2]decimal.Decimal{}, err
	}
	return &e, [2]decimal.Decimal{totalMined, totalAP}, nil
}

// advanceStreak recomputes the consecutive-mining-days counter under the
// row lock held by the reward transaction.
func (s *Store) advanceStreak(ctx context.Context, tx pgx.Tx, accountID int64, observedAt time.Time) (int, error) {
	var (
		lastDate *time.Time
		days     int
	)
	err := tx.QueryRow(ctx, `
		SELECT last_mining_date, consecutive_mining_days
		FROM players WHERE id = $1 FOR UPDATE`, accountID).
		Scan(&lastDate, &days)
	if err != nil {
		return 0, fmt.Errorf("lock account: %w", err)
	}

	today := observedAt.UTC().Truncate(24 * time.Hour)
	switch {
	case lastDate == nil:
		return 1, nil
	case lastDate.UTC().Truncate(24 * time.Hour).Equal(today):
		return days, nil
	case lastDate.UTC().Truncate(24 * time.Hour).Equal(today.AddDate(0, 0, -1)):
		return days + 1, nil
	default:
		return 1, nil
	}
}

// --- Reward history ---

// RecentRewards returns the newest ledger rows for a wallet, for the
// history endpoint.
func (s *Store) RecentRewards(ctx context.Context, wallet string, limit int) ([]reward.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.account_id, l.source, l.cumulative_paid::text, l.previous_paid::text,
		       l.delta::text, l.ap::text, l.observed_at
		FROM reward_ledger l
		JOIN players pl ON pl.id = l.account_id
		WHERE pl.wallet_address = $1
		ORDER BY l.observed_at DESC, l.id DESC
		LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("recent rewards: %w", err)
	}
	defer rows.Close()

	var entries []reward.LedgerEntry
	for rows.Next() {
		var (
			e                     reward.LedgerEntry
			paid, prev, delta, ap string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Source, &paid, &prev, &delta, &ap, &e.ObservedAt); err != nil {
			return nil, err
		}
		if e.CumulativePaid, err = decimal.NewFromString(paid); err != nil {
			return nil, err
		}
		if e.PreviousPaid, err = decimal.NewFromString(prev); err != nil {
			return nil, err
		}
		if e.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, err
		}
		if e.AP, err = decimal.NewFromString(ap); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Pool exposes the underlying connection pool for use by other packages.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
