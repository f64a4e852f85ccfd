package persona

import (
	"database/sql"

	"hearthwatch/internal/store"
)

const component = "persona"

var migrations = []store.Migration{
	{
		Version:     1,
		Description: "create persons and person_devices tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS persons (
					id         TEXT PRIMARY KEY,
					name       TEXT NOT NULL,
					created_at DATETIME NOT NULL
				);
				CREATE TABLE IF NOT EXISTS person_devices (
					person_id   TEXT NOT NULL REFERENCES persons(id),
					mac_address TEXT NOT NULL UNIQUE,
					PRIMARY KEY (person_id, mac_address)
				);
				CREATE INDEX IF NOT EXISTS idx_person_devices_person ON person_devices(person_id);
			`)
			return err
		},
	},
}
