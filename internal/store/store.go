// Package store persists seller stores, expenses, marketplace invoice
// aggregates and monthly summaries in SQLite. Monetary columns are stored as
// decimal text so values survive the round trip exactly.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/reconcile"
)

// ErrNotFound is returned when a row does not exist or belongs to another store.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Store wraps the SQL database with the persistence operations of the app.
type Store struct {
	db *sql.DB
}

// New returns a Store over an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SellerStore is one connected marketplace store.
type SellerStore struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Marketplace string `json:"marketplace"`
	CreatedAt   string `json:"createdAt"`
}

// CreateStore registers a new seller store and returns it.
func (s *Store) CreateStore(name, marketplace string) (SellerStore, error) {
	id := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`
		INSERT INTO stores (id, name, marketplace, created_at)
		VALUES (?, ?, ?, ?)
	`, id, name, marketplace, createdAt)
	if err != nil {
		return SellerStore{}, fmt.Errorf("insert store: %w", err)
	}

	return SellerStore{ID: id, Name: name, Marketplace: marketplace, CreatedAt: createdAt}, nil
}

// ListStores returns all registered stores, newest first.
func (s *Store) ListStores() ([]SellerStore, error) {
	rows, err := s.db.Query(`
		SELECT id, name, marketplace, created_at
		FROM stores
		ORDER BY datetime(created_at) DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	stores := make([]SellerStore, 0)
	for rows.Next() {
		var st SellerStore
		if err := rows.Scan(&st.ID, &st.Name, &st.Marketplace, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

// GetStore fetches one store by id.
func (s *Store) GetStore(id string) (SellerStore, error) {
	var st SellerStore
	err := s.db.QueryRow(`
		SELECT id, name, marketplace, created_at
		FROM stores
		WHERE id = ?
	`, id).Scan(&st.ID, &st.Name, &st.Marketplace, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SellerStore{}, ErrNotFound
	}
	if err != nil {
		return SellerStore{}, fmt.Errorf("query store: %w", err)
	}
	return st, nil
}

// ExpenseInput carries the caller-supplied fields of an expense record.
type ExpenseInput struct {
	Date         time.Time        `json:"date"`
	CategoryName string           `json:"categoryName"`
	Description  string           `json:"description"`
	Amount       decimal.Decimal  `json:"amount"`
	VatRate      *decimal.Decimal `json:"vatRate"`
	VatAmount    *decimal.Decimal `json:"vatAmount"`
}

// CreateExpense inserts a discretionary expense for a store.
func (s *Store) CreateExpense(storeID string, in ExpenseInput) (reconcile.ExpenseRecord, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO expenses (id, store_id, date, category, description, amount, vat_rate, vat_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, storeID, in.Date.Format(dateLayout), in.CategoryName, in.Description,
		in.Amount.String(), nullDecString(in.VatRate), nullDecString(in.VatAmount))
	if err != nil {
		return reconcile.ExpenseRecord{}, fmt.Errorf("insert expense: %w", err)
	}

	return reconcile.ExpenseRecord{
		ID:           id,
		Date:         in.Date,
		CategoryName: in.CategoryName,
		Description:  in.Description,
		Amount:       in.Amount,
		VatRate:      in.VatRate,
		VatAmount:    in.VatAmount,
	}, nil
}

// UpdateExpense rewrites an expense owned by the given store.
func (s *Store) UpdateExpense(storeID, expenseID string, in ExpenseInput) error {
	result, err := s.db.Exec(`
		UPDATE expenses
		SET
			date = ?,
			category = ?,
			description = ?,
			amount = ?,
			vat_rate = ?,
			vat_amount = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND store_id = ?
	`, in.Date.Format(dateLayout), in.CategoryName, in.Description,
		in.Amount.String(), nullDecString(in.VatRate), nullDecString(in.VatAmount),
		expenseID, storeID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpense removes an expense owned by the given store.
func (s *Store) DeleteExpense(storeID, expenseID string) error {
	result, err := s.db.Exec(`
		DELETE FROM expenses WHERE id = ? AND store_id = ?
	`, expenseID, storeID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpenses returns every expense of a store, newest date first. Month
// filtering is the reconciliation engine's job, not the query's.
func (s *Store) ListExpenses(storeID string) ([]reconcile.ExpenseRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, date, category, COALESCE(description, ''), amount, vat_rate, vat_amount
		FROM expenses
		WHERE store_id = ?
		ORDER BY date DESC, id
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]reconcile.ExpenseRecord, 0)
	for rows.Next() {
		var rec reconcile.ExpenseRecord
		var dateStr, amountStr string
		var vatRate, vatAmount sql.NullString
		if err := rows.Scan(&rec.ID, &dateStr, &rec.CategoryName, &rec.Description, &amountStr, &vatRate, &vatAmount); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if rec.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", dateStr, err)
		}
		if rec.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse expense amount %q: %w", amountStr, err)
		}
		if rec.VatRate, err = scanNullDec(vatRate); err != nil {
			return nil, fmt.Errorf("parse expense vat rate: %w", err)
		}
		if rec.VatAmount, err = scanNullDec(vatAmount); err != nil {
			return nil, fmt.Errorf("parse expense vat amount: %w", err)
		}
		expenses = append(expenses, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func nullDecString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanNullDec(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
