package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the settlement archive table. epoch_id is the natural key;
// settlement is write-once, so replays just conflict away.
const schema = `
CREATE TABLE IF NOT EXISTS settlements (
	epoch_id        TEXT PRIMARY KEY,
	question        TEXT NOT NULL,
	category        TEXT NOT NULL,
	answer          TEXT NOT NULL DEFAULT '',
	tier            INT NOT NULL,
	hash_value      INT NOT NULL,
	winner_bet_id   TEXT NOT NULL DEFAULT '',
	winner_agent_id TEXT NOT NULL DEFAULT '',
	winner_name     TEXT NOT NULL DEFAULT '',
	prize_sats      BIGINT NOT NULL,
	pool_sats       BIGINT NOT NULL,
	participants    INT NOT NULL,
	digest          TEXT NOT NULL,
	settled_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS settlements_settled_at_idx
	ON settlements (settled_at DESC);
`

// EnsureSchema creates the settlements table if it does not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}
