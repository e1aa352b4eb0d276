package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/reconcile"
)

// ReplaceInvoiceTotals swaps a month's marketplace invoice aggregates for a
// store in one transaction. The sync job calls this with whatever the
// marketplace reported; dropping unsyncable rows is the engine's concern.
func (s *Store) ReplaceInvoiceTotals(storeID string, month reconcile.Month, rows []reconcile.InvoiceTypeAggregate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin invoice totals transaction: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM invoice_type_totals
		WHERE store_id = ? AND year = ? AND month = ?
	`, storeID, month.Year, int(month.Month)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear invoice totals: %w", err)
	}

	for _, row := range rows {
		if _, err := tx.Exec(`
			INSERT INTO invoice_type_totals (
				store_id, year, month, type_code, type_name, category,
				invoice_count, total_amount, total_vat_amount, vat_rate
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, storeID, month.Year, int(month.Month), row.TypeCode, row.TypeName, row.Category,
			row.InvoiceCount, row.TotalAmount.String(), row.TotalVatAmount.String(),
			nullDecString(row.VatRate)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert invoice total %q: %w", row.TypeCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice totals: %w", err)
	}
	return nil
}

// ListInvoiceTotals returns a month's stored invoice aggregates.
func (s *Store) ListInvoiceTotals(storeID string, month reconcile.Month) ([]reconcile.InvoiceTypeAggregate, error) {
	rows, err := s.db.Query(`
		SELECT type_code, type_name, COALESCE(category, ''), invoice_count, total_amount, total_vat_amount, vat_rate
		FROM invoice_type_totals
		WHERE store_id = ? AND year = ? AND month = ?
		ORDER BY type_code
	`, storeID, month.Year, int(month.Month))
	if err != nil {
		return nil, fmt.Errorf("query invoice totals: %w", err)
	}
	defer rows.Close()

	totals := make([]reconcile.InvoiceTypeAggregate, 0)
	for rows.Next() {
		var agg reconcile.InvoiceTypeAggregate
		var totalStr, vatStr string
		var vatRate sql.NullString
		if err := rows.Scan(&agg.TypeCode, &agg.TypeName, &agg.Category, &agg.InvoiceCount, &totalStr, &vatStr, &vatRate); err != nil {
			return nil, fmt.Errorf("scan invoice total: %w", err)
		}
		if agg.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("parse invoice total amount %q: %w", totalStr, err)
		}
		if agg.TotalVatAmount, err = decimal.NewFromString(vatStr); err != nil {
			return nil, fmt.Errorf("parse invoice vat amount %q: %w", vatStr, err)
		}
		if agg.VatRate, err = scanNullDec(vatRate); err != nil {
			return nil, fmt.Errorf("parse invoice vat rate: %w", err)
		}
		totals = append(totals, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice totals: %w", err)
	}
	return totals, nil
}

// UpsertSalesVat stores a month's sales VAT summary including rate buckets.
func (s *Store) UpsertSalesVat(storeID string, month reconcile.Month, summary reconcile.SalesVatSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sales vat transaction: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO monthly_sales_vat (store_id, year, month, total_sales_amount, total_vat_amount, items_sold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, year, month) DO UPDATE SET
			total_sales_amount = excluded.total_sales_amount,
			total_vat_amount = excluded.total_vat_amount,
			items_sold = excluded.items_sold
	`, storeID, month.Year, int(month.Month),
		summary.TotalSalesAmount.String(), summary.TotalVatAmount.String(), summary.ItemsSold); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert sales vat: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM sales_vat_buckets WHERE store_id = ? AND year = ? AND month = ?
	`, storeID, month.Year, int(month.Month)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear sales vat buckets: %w", err)
	}
	for _, bucket := range summary.ByRate {
		if _, err := tx.Exec(`
			INSERT INTO sales_vat_buckets (store_id, year, month, vat_rate, sales_amount, vat_amount, item_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, storeID, month.Year, int(month.Month),
			bucket.VatRate.String(), bucket.SalesAmount.String(), bucket.VatAmount.String(), bucket.ItemCount); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert sales vat bucket %s: %w", bucket.VatRate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sales vat: %w", err)
	}
	return nil
}

// GetSalesVat loads a month's sales VAT summary. A month with no data yields
// a zero summary, not an error.
func (s *Store) GetSalesVat(storeID string, month reconcile.Month) (reconcile.SalesVatSummary, error) {
	var summary reconcile.SalesVatSummary
	var salesStr, vatStr string
	err := s.db.QueryRow(`
		SELECT total_sales_amount, total_vat_amount, items_sold
		FROM monthly_sales_vat
		WHERE store_id = ? AND year = ? AND month = ?
	`, storeID, month.Year, int(month.Month)).Scan(&salesStr, &vatStr, &summary.ItemsSold)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.SalesVatSummary{}, nil
	}
	if err != nil {
		return reconcile.SalesVatSummary{}, fmt.Errorf("query sales vat: %w", err)
	}
	if summary.TotalSalesAmount, err = decimal.NewFromString(salesStr); err != nil {
		return reconcile.SalesVatSummary{}, fmt.Errorf("parse sales amount %q: %w", salesStr, err)
	}
	if summary.TotalVatAmount, err = decimal.NewFromString(vatStr); err != nil {
		return reconcile.SalesVatSummary{}, fmt.Errorf("parse sales vat amount %q: %w", vatStr, err)
	}

	rows, err := s.db.Query(`
		SELECT vat_rate, sales_amount, vat_amount, item_count
		FROM sales_vat_buckets
		WHERE store_id = ? AND year = ? AND month = ?
		ORDER BY CAST(vat_rate AS REAL)
	`, storeID, month.Year, int(month.Month))
	if err != nil {
		return reconcile.SalesVatSummary{}, fmt.Errorf("query sales vat buckets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket reconcile.RateBucket
		var rateStr, bucketSalesStr, bucketVatStr string
		if err := rows.Scan(&rateStr, &bucketSalesStr, &bucketVatStr, &bucket.ItemCount); err != nil {
			return reconcile.SalesVatSummary{}, fmt.Errorf("scan sales vat bucket: %w", err)
		}
		if bucket.VatRate, err = decimal.NewFromString(rateStr); err != nil {
			return reconcile.SalesVatSummary{}, fmt.Errorf("parse bucket rate %q: %w", rateStr, err)
		}
		if bucket.SalesAmount, err = decimal.NewFromString(bucketSalesStr); err != nil {
			return reconcile.SalesVatSummary{}, fmt.Errorf("parse bucket sales %q: %w", bucketSalesStr, err)
		}
		if bucket.VatAmount, err = decimal.NewFromString(bucketVatStr); err != nil {
			return reconcile.SalesVatSummary{}, fmt.Errorf("parse bucket vat %q: %w", bucketVatStr, err)
		}
		summary.ByRate = append(summary.ByRate, bucket)
	}
	if err := rows.Err(); err != nil {
		return reconcile.SalesVatSummary{}, fmt.Errorf("iterate sales vat buckets: %w", err)
	}
	return summary, nil
}

// UpsertCogs stores a month's cost-of-goods-sold VAT summary.
func (s *Store) UpsertCogs(storeID string, month reconcile.Month, summary reconcile.CogsVatSummary) error {
	_, err := s.db.Exec(`
		INSERT INTO monthly_cogs (store_id, year, month, total_cost_inc_vat, total_cost_vat_amount, items_sold, items_without_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, year, month) DO UPDATE SET
			total_cost_inc_vat = excluded.total_cost_inc_vat,
			total_cost_vat_amount = excluded.total_cost_vat_amount,
			items_sold = excluded.items_sold,
			items_without_cost = excluded.items_without_cost
	`, storeID, month.Year, int(month.Month),
		summary.TotalCostIncVat.String(), summary.TotalCostVatAmount.String(),
		summary.ItemsSold, summary.ItemsWithoutCost)
	if err != nil {
		return fmt.Errorf("upsert cogs: %w", err)
	}
	return nil
}

// GetCogs loads a month's COGS VAT summary; absent months yield zero values.
func (s *Store) GetCogs(storeID string, month reconcile.Month) (reconcile.CogsVatSummary, error) {
	var summary reconcile.CogsVatSummary
	var costStr, vatStr string
	err := s.db.QueryRow(`
		SELECT total_cost_inc_vat, total_cost_vat_amount, items_sold, items_without_cost
		FROM monthly_cogs
		WHERE store_id = ? AND year = ? AND month = ?
	`, storeID, month.Year, int(month.Month)).Scan(&costStr, &vatStr, &summary.ItemsSold, &summary.ItemsWithoutCost)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.CogsVatSummary{}, nil
	}
	if err != nil {
		return reconcile.CogsVatSummary{}, fmt.Errorf("query cogs: %w", err)
	}
	if summary.TotalCostIncVat, err = decimal.NewFromString(costStr); err != nil {
		return reconcile.CogsVatSummary{}, fmt.Errorf("parse cogs cost %q: %w", costStr, err)
	}
	if summary.TotalCostVatAmount, err = decimal.NewFromString(vatStr); err != nil {
		return reconcile.CogsVatSummary{}, fmt.Errorf("parse cogs vat %q: %w", vatStr, err)
	}
	return summary, nil
}
