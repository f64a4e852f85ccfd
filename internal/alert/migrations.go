package alert

import (
	"database/sql"

	"hearthwatch/internal/store"
)

const component = "alert"

var migrations = []store.Migration{
	{
		Version:     1,
		Description: "create alert_rules table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS alert_rules (
					id          TEXT PRIMARY KEY,
					name        TEXT NOT NULL,
					trigger     TEXT NOT NULL,
					person_id   TEXT NOT NULL DEFAULT '',
					mac_address TEXT NOT NULL DEFAULT '',
					webhook_url TEXT NOT NULL,
					enabled     INTEGER NOT NULL DEFAULT 1,
					created_at  DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
			`)
			return err
		},
	},
}
