package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/breakdown"
)

// Preset is a reusable cost-rule set for the breakdown calculator. Rules are
// stored as JSON so rule shapes can evolve without schema churn.
type Preset struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	SaleVatRate decimal.Decimal      `json:"saleVatRate"`
	Rules       []breakdown.CostRule `json:"rules"`
}

// SavePreset inserts or replaces a named preset.
func (s *Store) SavePreset(name string, saleVatRate decimal.Decimal, rules []breakdown.CostRule) error {
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal preset rules: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO rule_presets (name, sale_vat_rate, rules_json)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			sale_vat_rate = excluded.sale_vat_rate,
			rules_json = excluded.rules_json
	`, name, saleVatRate.String(), string(rulesJSON))
	if err != nil {
		return fmt.Errorf("upsert preset %q: %w", name, err)
	}
	return nil
}

// GetPreset loads one preset by name.
func (s *Store) GetPreset(name string) (Preset, error) {
	var p Preset
	var rateStr, rulesJSON string
	err := s.db.QueryRow(`
		SELECT id, name, sale_vat_rate, rules_json
		FROM rule_presets
		WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &rateStr, &rulesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Preset{}, ErrNotFound
	}
	if err != nil {
		return Preset{}, fmt.Errorf("query preset %q: %w", name, err)
	}
	if p.SaleVatRate, err = decimal.NewFromString(rateStr); err != nil {
		return Preset{}, fmt.Errorf("parse preset vat rate %q: %w", rateStr, err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return Preset{}, fmt.Errorf("unmarshal preset rules: %w", err)
	}
	return p, nil
}

// ListPresets returns all presets ordered by name.
func (s *Store) ListPresets() ([]Preset, error) {
	rows, err := s.db.Query(`
		SELECT id, name, sale_vat_rate, rules_json
		FROM rule_presets
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	presets := make([]Preset, 0)
	for rows.Next() {
		var p Preset
		var rateStr, rulesJSON string
		if err := rows.Scan(&p.ID, &p.Name, &rateStr, &rulesJSON); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		if p.SaleVatRate, err = decimal.NewFromString(rateStr); err != nil {
			return nil, fmt.Errorf("parse preset vat rate %q: %w", rateStr, err)
		}
		if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal preset rules: %w", err)
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presets: %w", err)
	}
	return presets, nil
}
