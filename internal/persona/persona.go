// Package persona groups devices under the people who carry them, so
// presence can be reported per person instead of per MAC address.
package persona

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hearthwatch/internal/store"
	"hearthwatch/pkg/models"
)

// ErrPersonNotFound is returned for operations on an unknown person ID.
var ErrPersonNotFound = errors.New("person not found")

// ErrDeviceNotFound is returned when assigning a MAC the registry has
// never sighted.
var ErrDeviceNotFound = errors.New("device not found")

// AlreadyAssignedError reports a device that already belongs to a
// different person. Reassignment must be an explicit unassign-then-assign,
// never a silent steal.
type AlreadyAssignedError struct {
	MACAddress string
	OwnerID    string
	OwnerName  string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("device %s is already assigned to %s", e.MACAddress, e.OwnerName)
}

// Store provides person CRUD and device assignment on the shared database.
type Store struct {
	store  *store.SQLiteStore
	logger *zap.Logger
}

// New creates a persona store.
func New(st *store.SQLiteStore, logger *zap.Logger) *Store {
	return &Store{store: st, logger: logger}
}

// Migrate applies the persona schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx, component, migrations)
}

// CreatePerson adds a new person and returns the stored record.
func (s *Store) CreatePerson(ctx context.Context, name string) (*models.Person, error) {
	if name == "" {
		return nil, errors.New("person name must not be empty")
	}
	p := &models.Person{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.store.DB().ExecContext(ctx,
		"INSERT INTO persons (id, name, created_at) VALUES (?, ?, ?)",
		p.ID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create person %q: %w", name, err)
	}
	s.logger.Info("person created", zap.String("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// GetPerson returns one person by ID.
func (s *Store) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	var p models.Person
	err := s.store.DB().QueryRowContext(ctx,
		"SELECT id, name, created_at FROM persons WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// ListPersons returns all persons ordered by name.
func (s *Store) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.store.DB().QueryContext(ctx,
		"SELECT id, name, created_at FROM persons ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// DeletePerson removes a person and all their device assignments.
func (s *Store) DeletePerson(ctx context.Context, id string) error {
	return s.store.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM person_devices WHERE person_id = ?", id); err != nil {
			return fmt.Errorf("delete assignments for %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM persons WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete person %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPersonNotFound
		}
		return nil
	})
}

// AssignDevice links a sighted device to a person. Assigning a device to
// the person who already owns it is a no-op; assigning it to anyone else
// fails with AlreadyAssignedError.
func (s *Store) AssignDevice(ctx context.Context, personID, mac string) error {
	normalized := models.NormalizeMAC(mac)

	return s.store.Tx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM persons WHERE id = ?", personID).Scan(&exists); err != nil {
			return fmt.Errorf("check person %s: %w", personID, err)
		}
		if exists == 0 {
			return ErrPersonNotFound
		}

		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM devices WHERE mac_address = ?", normalized).Scan(&exists); err != nil {
			return fmt.Errorf("check device %s: %w", normalized, err)
		}
		if exists == 0 {
			return fmt.Errorf("assign %s: %w", normalized, ErrDeviceNotFound)
		}

		var ownerID, ownerName string
		err := tx.QueryRowContext(ctx, `
			SELECT p.id, p.name FROM person_devices pd
			JOIN persons p ON p.id = pd.person_id
			WHERE pd.mac_address = ?`, normalized,
		).Scan(&ownerID, &ownerName)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// unassigned, proceed
		case err != nil:
			return fmt.Errorf("check assignment of %s: %w", normalized, err)
		case ownerID == personID:
			return nil
		default:
			return &AlreadyAssignedError{
				MACAddress: normalized,
				OwnerID:    ownerID,
				OwnerName:  ownerName,
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO person_devices (person_id, mac_address) VALUES (?, ?)",
			personID, normalized); err != nil {
			return fmt.Errorf("assign %s to %s: %w", normalized, personID, err)
		}
		return nil
	})
}

// UnassignDevice removes a device's person link, if any.
func (s *Store) UnassignDevice(ctx context.Context, mac string) error {
	normalized := models.NormalizeMAC(mac)
	_, err := s.store.DB().ExecContext(ctx,
		"DELETE FROM person_devices WHERE mac_address = ?", normalized)
	if err != nil {
		return fmt.Errorf("unassign %s: %w", normalized, err)
	}
	return nil
}

// PersonDevices returns the devices assigned to a person.
func (s *Store) PersonDevices(ctx context.Context, personID string) ([]models.Device, error) {
	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT d.mac_address, d.display_name, d.hostname, d.vendor,
			d.first_seen, d.last_seen, d.signal_strength, d.visit_count,
			d.classification, d.is_randomized, d.ap_name, d.ssid
		FROM person_devices pd
		JOIN devices d ON d.mac_address = pd.mac_address
		WHERE pd.person_id = ?
		ORDER BY d.last_seen DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("devices for person %s: %w", personID, err)
	}
	defer rows.Close()

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

// PersonForDevice resolves a MAC to its owner, or nil when unassigned.
func (s *Store) PersonForDevice(ctx context.Context, mac string) (*models.Person, error) {
	var p models.Person
	err := s.store.DB().QueryRowContext(ctx, `
		SELECT p.id, p.name, p.created_at FROM person_devices pd
		JOIN persons p ON p.id = pd.person_id
		WHERE pd.mac_address = ?`, models.NormalizeMAC(mac),
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("owner of %s: %w", mac, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// PersonPresence is one person's point-in-time presence view: a person is
// present while at least one of their devices was seen within the grace
// period.
type PersonPresence struct {
	Person         models.Person   `json:"person"`
	Present        bool            `json:"present"`
	PresentDevices []models.Device `json:"present_devices"`
}

// PresentPersons returns the presence view for every person, name-ordered.
// This is a pure query over the same last-seen data the presence detector
// uses, so the per-device and per-person views never disagree.
func (s *Store) PresentPersons(ctx context.Context, grace time.Duration) ([]PersonPresence, error) {
	persons, err := s.ListPersons(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-grace)
	result := make([]PersonPresence, 0, len(persons))
	for _, p := range persons {
		devices, err := s.PersonDevices(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		entry := PersonPresence{Person: p}
		for _, d := range devices {
			if !d.LastSeen.Before(cutoff) {
				entry.PresentDevices = append(entry.PresentDevices, d)
			}
		}
		entry.Present = len(entry.PresentDevices) > 0
		result = append(result, entry)
	}
	return result, nil
}
