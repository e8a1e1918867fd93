package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"filesentry/internal/retry"
	"filesentry/internal/rules"
)

// LoadRules returns the full rule set in id order. Rows with an unparseable
// severity or action are skipped with a warning so one bad row never takes
// down evaluation.
func (s *Store) LoadRules(ctx context.Context) ([]rules.Rule, error) {
	query := `
		SELECT id, name, pattern, severity, action, adaptive, weight, version, COALESCE(description, ''), updated_at
		FROM rules
		ORDER BY id
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStoreError("load rules", err)
	}
	defer rows.Close()

	var loaded []rules.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrapStoreError("scan rule", err)
		}
		if parseErr := normalizeRule(&rule); parseErr != nil {
			slog.Warn("Skipping malformed rule row",
				"rule_id", rule.ID,
				"error", parseErr,
			)
			continue
		}
		loaded = append(loaded, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("load rules", err)
	}
	return loaded, nil
}

// GetRule returns one rule by id, for the learner's read-modify-write cycle.
func (s *Store) GetRule(ctx context.Context, id int64) (rules.Rule, error) {
	query := `
		SELECT id, name, pattern, severity, action, adaptive, weight, version, COALESCE(description, ''), updated_at
		FROM rules
		WHERE id = $1
	`
	row := s.conn.QueryRowContext(ctx, query, id)

	var rule rules.Rule
	var severity, action string
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Pattern,
		&severity,
		&action,
		&rule.Adaptive,
		&rule.Weight,
		&rule.Version,
		&rule.Description,
		&rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return rules.Rule{}, retry.Permanent(fmt.Errorf("rule %d: %w", id, ErrRuleNotFound))
	}
	if err != nil {
		return rules.Rule{}, wrapStoreError("get rule", err)
	}

	rule.Severity = rules.Severity(severity)
	rule.Action = rules.Action(action)
	if err := normalizeRule(&rule); err != nil {
		return rules.Rule{}, retry.Permanent(fmt.Errorf("rule %d: %w", id, err))
	}
	return rule, nil
}

// scanRule reads one row into a Rule with the enum columns still raw.
func scanRule(rows *sql.Rows) (rules.Rule, error) {
	var rule rules.Rule
	var severity, action string
	err := rows.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Pattern,
		&severity,
		&action,
		&rule.Adaptive,
		&rule.Weight,
		&rule.Version,
		&rule.Description,
		&rule.UpdatedAt,
	)
	rule.Severity = rules.Severity(severity)
	rule.Action = rules.Action(action)
	return rule, err
}

// normalizeRule canonicalizes the enum columns, rejecting unknown values.
func normalizeRule(rule *rules.Rule) error {
	severity, err := rules.ParseSeverity(string(rule.Severity))
	if err != nil {
		return err
	}
	action, err := rules.ParseAction(string(rule.Action))
	if err != nil {
		return err
	}
	rule.Severity = severity
	rule.Action = action
	return nil
}
