// Package seed inserts the baseline records a fresh deployment needs: the
// admin user and the default Trendyol cost-rule preset for the calculator.
package seed

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/breakdown"
)

const defaultPresetName = "trendyol-standart"

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := seedDefaultPreset(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	sum := sha256.Sum256([]byte(password))
	if _, err := tx.Exec(`INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

// seedDefaultPreset installs the Trendyol waterfall the original dashboard
// ships with: marketplace commission as a share of the net sale price, a
// platform fee derived from the commission, and gross-entered logistics
// costs at the standard 20% expense rate.
func seedDefaultPreset(tx *sql.Tx, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM rule_presets WHERE name = ? LIMIT 1)`, defaultPresetName).Scan(&exists); err != nil {
		return fmt.Errorf("check default preset existence: %w", err)
	}
	if exists {
		return nil
	}

	expenseRate := decimal.RequireFromString("0.20")
	rules := []breakdown.CostRule{
		{Name: "Alış Maliyeti", Rate: expenseRate, Basis: breakdown.FixedGross(decimal.Zero), Creditable: true},
		{Name: "Komisyon", Rate: expenseRate, Basis: breakdown.PercentOfSale(decimal.RequireFromString("0.215")), Creditable: true},
		{Name: "Platform Hizmet Bedeli", Rate: expenseRate, Basis: breakdown.PercentOfItem("Komisyon", decimal.RequireFromString("0.10")), Creditable: true},
		{Name: "Nakliyat", Rate: expenseRate, Basis: breakdown.FixedGross(decimal.Zero), Creditable: true},
		{Name: "Paketleme", Rate: expenseRate, Basis: breakdown.FixedGross(decimal.Zero), Creditable: true},
		{Name: "Kargo Masrafı", Rate: expenseRate, Basis: breakdown.FixedGross(decimal.Zero), Creditable: true},
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal default preset rules: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO rule_presets (name, sale_vat_rate, rules_json)
		VALUES (?, ?, ?)
	`, defaultPresetName, expenseRate.String(), string(rulesJSON)); err != nil {
		return fmt.Errorf("insert default preset: %w", err)
	}
	stats.Inserts++
	return nil
}
