// Package alert matches presence transitions against user-defined rules
// and delivers webhook notifications for the ones that fire.
package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hearthwatch/internal/store"
	"hearthwatch/pkg/models"
)

// ErrRuleNotFound is returned for operations on an unknown rule ID.
var ErrRuleNotFound = errors.New("alert rule not found")

// Store provides alert rule CRUD on the shared database.
type Store struct {
	store  *store.SQLiteStore
	logger *zap.Logger
}

// NewStore creates an alert rule store.
func NewStore(st *store.SQLiteStore, logger *zap.Logger) *Store {
	return &Store{store: st, logger: logger}
}

// Migrate applies the alert schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx, component, migrations)
}

// CreateRule validates and stores a new rule. The MAC scope, if present,
// is normalized so it matches transitions regardless of input spelling.
func (s *Store) CreateRule(ctx context.Context, rule models.AlertRule) (*models.AlertRule, error) {
	if rule.Name == "" {
		return nil, errors.New("rule name must not be empty")
	}
	if !validTrigger(rule.Trigger) {
		return nil, fmt.Errorf("invalid trigger %q", rule.Trigger)
	}
	if err := validateWebhookURL(rule.WebhookURL); err != nil {
		return nil, err
	}

	rule.ID = uuid.NewString()
	rule.CreatedAt = time.Now().UTC()
	if rule.MACAddress != "" {
		rule.MACAddress = models.NormalizeMAC(rule.MACAddress)
	}

	_, err := s.store.DB().ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, trigger, person_id, mac_address,
			webhook_url, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Trigger, rule.PersonID, rule.MACAddress,
		rule.WebhookURL, rule.Enabled, rule.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create rule %q: %w", rule.Name, err)
	}
	s.logger.Info("alert rule created",
		zap.String("id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("trigger", string(rule.Trigger)),
	)
	return &rule, nil
}

// GetRule returns one rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	row := s.store.DB().QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM alert_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

// ListRules returns rules, optionally only enabled ones, newest first.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]models.AlertRule, error) {
	query := "SELECT " + ruleColumns + " FROM alert_rules"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.store.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// UpdateRule replaces a rule's configuration in place, keeping its ID and
// creation time. The same validation as CreateRule applies.
func (s *Store) UpdateRule(ctx context.Context, rule models.AlertRule) (*models.AlertRule, error) {
	if rule.Name == "" {
		return nil, errors.New("rule name must not be empty")
	}
	if !validTrigger(rule.Trigger) {
		return nil, fmt.Errorf("invalid trigger %q", rule.Trigger)
	}
	if err := validateWebhookURL(rule.WebhookURL); err != nil {
		return nil, err
	}
	if rule.MACAddress != "" {
		rule.MACAddress = models.NormalizeMAC(rule.MACAddress)
	}

	res, err := s.store.DB().ExecContext(ctx, `
		UPDATE alert_rules SET name = ?, trigger = ?, person_id = ?,
			mac_address = ?, webhook_url = ?, enabled = ?
		WHERE id = ?`,
		rule.Name, rule.Trigger, rule.PersonID, rule.MACAddress,
		rule.WebhookURL, rule.Enabled, rule.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrRuleNotFound
	}
	return s.GetRule(ctx, rule.ID)
}

// SetEnabled toggles a rule without deleting its configuration.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.store.DB().ExecContext(ctx,
		"UPDATE alert_rules SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("toggle rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule permanently.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.store.DB().ExecContext(ctx,
		"DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

const ruleColumns = "id, name, trigger, person_id, mac_address, webhook_url, enabled, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := row.Scan(&rule.ID, &rule.Name, &rule.Trigger, &rule.PersonID,
		&rule.MACAddress, &rule.WebhookURL, &rule.Enabled, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	return &rule, nil
}

func validTrigger(t models.TriggerType) bool {
	switch t {
	case models.TriggerArrive, models.TriggerDepart, models.TriggerBoth:
		return true
	}
	return false
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook URL must be absolute http(s): %q", raw)
	}
	return nil
}
