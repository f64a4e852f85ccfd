package registry

import (
	"database/sql"

	"hearthwatch/internal/store"
)

// Component name used in the shared _migrations table.
const component = "registry"

var migrations = []store.Migration{
	{
		Version:     1,
		Description: "create devices table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS devices (
					mac_address     TEXT PRIMARY KEY,
					display_name    TEXT NOT NULL DEFAULT '',
					hostname        TEXT NOT NULL DEFAULT '',
					vendor          TEXT NOT NULL DEFAULT '',
					first_seen      DATETIME NOT NULL,
					last_seen       DATETIME NOT NULL,
					signal_strength INTEGER NOT NULL DEFAULT 0,
					visit_count     INTEGER NOT NULL DEFAULT 1,
					classification  TEXT NOT NULL DEFAULT 'unknown',
					is_randomized   INTEGER NOT NULL DEFAULT 0,
					ap_name         TEXT NOT NULL DEFAULT '',
					ssid            TEXT NOT NULL DEFAULT ''
				);
				CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);
				CREATE INDEX IF NOT EXISTS idx_devices_classification ON devices(classification);
			`)
			return err
		},
	},
	{
		Version:     2,
		Description: "create presence_log table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS presence_log (
					id          TEXT PRIMARY KEY,
					mac_address TEXT NOT NULL,
					event_type  TEXT NOT NULL,
					timestamp   DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_presence_log_mac ON presence_log(mac_address, timestamp);
				CREATE INDEX IF NOT EXISTS idx_presence_log_time ON presence_log(timestamp);
			`)
			return err
		},
	},
}
