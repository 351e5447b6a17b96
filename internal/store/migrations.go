package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS players (
    id BIGSERIAL PRIMARY KEY,
    wallet_address TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL DEFAULT '',
    total_mined NUMERIC(30, 8) NOT NULL DEFAULT 0,
    total_ap NUMERIC(30, 8) NOT NULL DEFAULT 0,
    last_reward_at TIMESTAMPTZ,
    last_mining_date TIMESTAMPTZ,
    consecutive_mining_days INT NOT NULL DEFAULT 0,
    verified BOOLEAN NOT NULL DEFAULT false,
    active BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
    account_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    cumulative_paid NUMERIC(30, 8) NOT NULL,
    balance NUMERIC(30, 8),
    aux JSONB NOT NULL DEFAULT '{}',
    observed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (account_id, source)
);

CREATE TABLE IF NOT EXISTS reward_ledger (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES players(id),
    source TEXT NOT NULL,
    cumulative_paid NUMERIC(30, 8) NOT NULL,
    previous_paid NUMERIC(30, 8) NOT NULL,
    delta NUMERIC(30, 8) NOT NULL,
    ap NUMERIC(30, 8) NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL,
    UNIQUE (account_id, source, cumulative_paid)
);

CREATE INDEX IF NOT EXISTS ix_reward_ledger_account_observed
    ON reward_ledger (account_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS daily_mining_stats (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    day TIMESTAMPTZ NOT NULL,
    total_mined NUMERIC(30, 8) NOT NULL DEFAULT 0,
    events_count INT NOT NULL DEFAULT 0,
    UNIQUE (account_id, day)
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
