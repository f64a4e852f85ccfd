// Package registry maintains the persistent device table: every beacon
// event from any sniffer backend is folded into exactly one device row per
// canonical MAC address, and presence transitions are derived from the
// rows' last-seen timestamps.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hearthwatch/internal/oui"
	"hearthwatch/internal/sniffer"
	"hearthwatch/internal/store"
	"hearthwatch/pkg/models"
)

// visitGap is the minimum quiet period between sightings for the second
// sighting to count as a new visit rather than a continuation.
const visitGap = 30 * time.Minute

// ErrNotFound is returned when a device MAC has never been sighted.
var ErrNotFound = errors.New("device not found")

// Registry is the device table plus the vendor lookup used to label new
// devices.
type Registry struct {
	store  *store.SQLiteStore
	vendor *oui.Table
	logger *zap.Logger
}

// New creates a device registry on the shared store.
func New(st *store.SQLiteStore, vendor *oui.Table, logger *zap.Logger) *Registry {
	return &Registry{store: st, vendor: vendor, logger: logger}
}

// Migrate applies the registry's schema migrations.
func (r *Registry) Migrate(ctx context.Context) error {
	return r.store.Migrate(ctx, component, migrations)
}

// UpsertDevice folds one sighting into the device table and returns the
// resulting row. Merge rules:
//
//   - last_seen always takes the event's timestamp, even when events arrive
//     out of order: the newest write wins.
//   - a sighting after more than visitGap of silence increments visit_count.
//   - a zero signal (the no-data sentinel) never overwrites a real reading.
//   - SSID and hostname are sticky: an empty value never clears a known one.
//   - vendor and the randomized-MAC flag are fixed at first sighting.
//
// Classification is recomputed after every merge.
func (r *Registry) UpsertDevice(ctx context.Context, ev sniffer.BeaconEvent) (*models.Device, error) {
	mac := models.NormalizeMAC(ev.MACAddress)
	if mac == "" {
		return nil, fmt.Errorf("empty MAC in %s event", ev.Source)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	var device *models.Device
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		existing, err := getDeviceTx(ctx, tx, mac)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		if existing == nil {
			device = &models.Device{
				MACAddress:     mac,
				Hostname:       ev.Hostname,
				Vendor:         r.vendor.Lookup(mac),
				FirstSeen:      ts,
				LastSeen:       ts,
				SignalStrength: ev.SignalStrength,
				VisitCount:     1,
				IsRandomized:   models.IsLocallyAdministered(mac),
				APName:         ev.APName,
				SSID:           ev.SSID,
			}
			device.Classification = Classify(device)

			_, err := tx.ExecContext(ctx, `
				INSERT INTO devices (mac_address, display_name, hostname, vendor,
					first_seen, last_seen, signal_strength, visit_count,
					classification, is_randomized, ap_name, ssid)
				VALUES (?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				device.MACAddress, device.Hostname, device.Vendor,
				device.FirstSeen, device.LastSeen, device.SignalStrength,
				device.VisitCount, device.Classification, device.IsRandomized,
				device.APName, device.SSID,
			)
			return err
		}

		device = existing
		if ts.Sub(device.LastSeen) > visitGap {
			device.VisitCount++
		}
		device.LastSeen = ts
		if ev.SignalStrength != sniffer.NoSignal {
			device.SignalStrength = ev.SignalStrength
		}
		if ev.SSID != "" {
			device.SSID = ev.SSID
		}
		if ev.Hostname != "" {
			device.Hostname = ev.Hostname
		}
		if ev.APName != "" {
			device.APName = ev.APName
		}
		device.Classification = Classify(device)

		_, err = tx.ExecContext(ctx, `
			UPDATE devices SET hostname = ?, last_seen = ?, signal_strength = ?,
				visit_count = ?, classification = ?, ap_name = ?, ssid = ?
			WHERE mac_address = ?`,
			device.Hostname, device.LastSeen, device.SignalStrength,
			device.VisitCount, device.Classification, device.APName,
			device.SSID, device.MACAddress,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", mac, err)
	}
	return device, nil
}

// Reclassify recomputes and persists a device's classification from its
// stored sighting window. Upserts already do this on every merge;
// Reclassify covers rows edited out of band, like a backfilled visit count.
func (r *Registry) Reclassify(ctx context.Context, mac string) (*models.Device, error) {
	var device *models.Device
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		d, err := getDeviceTx(ctx, tx, models.NormalizeMAC(mac))
		if err != nil {
			return err
		}
		d.Classification = Classify(d)
		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET classification = ? WHERE mac_address = ?",
			d.Classification, d.MACAddress); err != nil {
			return fmt.Errorf("reclassify %s: %w", d.MACAddress, err)
		}
		device = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// GetDevice returns the device row for a MAC in any accepted spelling.
func (r *Registry) GetDevice(ctx context.Context, mac string) (*models.Device, error) {
	var device *models.Device
	err := r.store.Tx(ctx, func(tx *sql.Tx) error {
		var err error
		device, err = getDeviceTx(ctx, tx, models.NormalizeMAC(mac))
		return err
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// ListDevices returns all devices, optionally filtered by classification,
// most recently seen first.
func (r *Registry) ListDevices(ctx context.Context, classification models.Classification) ([]models.Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices"
	args := []any{}
	if classification != "" {
		query += " WHERE classification = ?"
		args = append(args, classification)
	}
	query += " ORDER BY last_seen DESC"

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// PresentDevices returns devices seen within the grace period ending now.
func (r *Registry) PresentDevices(ctx context.Context, grace time.Duration) ([]models.Device, error) {
	cutoff := time.Now().UTC().Add(-grace)
	rows, err := r.store.DB().QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE last_seen >= ? ORDER BY last_seen DESC",
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("present devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// SetDisplayName assigns a user-chosen label to a device.
func (r *Registry) SetDisplayName(ctx context.Context, mac, name string) error {
	normalized := models.NormalizeMAC(mac)
	res, err := r.store.DB().ExecContext(ctx,
		"UPDATE devices SET display_name = ? WHERE mac_address = ?", name, normalized)
	if err != nil {
		return fmt.Errorf("set display name for %s: %w", normalized, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set display name for %s: %w", normalized, ErrNotFound)
	}
	return nil
}

// LogPresenceChange appends one transition to the presence log. The
// detector is the normal writer; it is exported so operators can backfill
// corrections.
func (r *Registry) LogPresenceChange(ctx context.Context, tr models.PresenceLog) error {
	_, err := r.store.DB().ExecContext(ctx,
		"INSERT INTO presence_log (id, mac_address, event_type, timestamp) VALUES (?, ?, ?, ?)",
		tr.ID, tr.MACAddress, tr.EventType, tr.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("log presence %s for %s: %w", tr.EventType, tr.MACAddress, err)
	}
	return nil
}

// PresenceHistory returns recent presence transitions, newest first. An
// empty MAC returns transitions for all devices.
func (r *Registry) PresenceHistory(ctx context.Context, mac string, limit int) ([]models.PresenceLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT id, mac_address, event_type, timestamp FROM presence_log"
	args := []any{}
	if mac != "" {
		query += " WHERE mac_address = ?"
		args = append(args, models.NormalizeMAC(mac))
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("presence history: %w", err)
	}
	defer rows.Close()

	var entries []models.PresenceLog
	for rows.Next() {
		var entry models.PresenceLog
		if err := rows.Scan(&entry.ID, &entry.MACAddress, &entry.EventType, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan presence log: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const deviceColumns = `mac_address, display_name, hostname, vendor,
	first_seen, last_seen, signal_strength, visit_count,
	classification, is_randomized, ap_name, ssid`

func getDeviceTx(ctx context.Context, tx *sql.Tx, mac string) (*models.Device, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE mac_address = ?", mac)

	var d models.Device
	err := row.Scan(&d.MACAddress, &d.DisplayName, &d.Hostname, &d.Vendor,
		&d.FirstSeen, &d.LastSeen, &d.SignalStrength, &d.VisitCount,
		&d.Classification, &d.IsRandomized, &d.APName, &d.SSID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", mac, err)
	}
	d.FirstSeen = d.FirstSeen.UTC()
	d.LastSeen = d.LastSeen.UTC()
	return &d, nil
}

func scanDevices(rows *sql.Rows) ([]models.Device, error) {
	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.MACAddress, &d.DisplayName, &d.Hostname, &d.Vendor,
			&d.FirstSeen, &d.LastSeen, &d.SignalStrength, &d.VisitCount,
			&d.Classification, &d.IsRandomized, &d.APName, &d.SSID); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.FirstSeen = d.FirstSeen.UTC()
		d.LastSeen = d.LastSeen.UTC()
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
