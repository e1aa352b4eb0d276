package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/esnafdesk/esnafdesk/internal/breakdown"
	"github.com/esnafdesk/esnafdesk/internal/reconcile"
	"github.com/esnafdesk/esnafdesk/internal/store"
	"github.com/esnafdesk/esnafdesk/internal/vatrates"
)

const testSessionSecret = "test-secret"

func newTestServer(t *testing.T) *server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);
		CREATE TABLE stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			marketplace TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE expenses (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			date TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT,
			amount TEXT NOT NULL,
			vat_rate TEXT,
			vat_amount TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE invoice_type_totals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			store_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			type_code TEXT NOT NULL,
			type_name TEXT NOT NULL,
			category TEXT,
			invoice_count INTEGER NOT NULL DEFAULT 0,
			total_amount TEXT NOT NULL,
			total_vat_amount TEXT NOT NULL,
			vat_rate TEXT,
			UNIQUE (store_id, year, month, type_code)
		);
		CREATE TABLE monthly_sales_vat (
			store_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			total_sales_amount TEXT NOT NULL,
			total_vat_amount TEXT NOT NULL,
			items_sold INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (store_id, year, month)
		);
		CREATE TABLE sales_vat_buckets (
			store_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			vat_rate TEXT NOT NULL,
			sales_amount TEXT NOT NULL,
			vat_amount TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE monthly_cogs (
			store_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			total_cost_inc_vat TEXT NOT NULL,
			total_cost_vat_amount TEXT NOT NULL,
			items_sold INTEGER NOT NULL DEFAULT 0,
			items_without_cost INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (store_id, year, month)
		);
		CREATE TABLE rule_presets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			sale_vat_rate TEXT NOT NULL,
			rules_json TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("failed creating schema: %v", err)
	}

	_, err = db.Exec(`INSERT INTO users (email, password_hash) VALUES (?, ?)`,
		"admin@example.com", hashPassword("hunter2"))
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return &server{
		auth:  newAuthService(db, testSessionSecret),
		db:    db,
		store: store.New(db),
		rates: vatrates.Turkish(),
	}
}

func doJSON(t *testing.T, srv *server, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.AddCookie(&http.Cookie{
			Name:  sessionCookieName,
			Value: srv.auth.createSessionValue("admin@example.com"),
		})
	}

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
}

func TestLoginAcceptsValidCredentials(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/login", loginRequest{
		Email:    "admin@example.com",
		Password: "hunter2",
	}, false)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == sessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a session cookie on successful login")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/login", loginRequest{
		Email:    "admin@example.com",
		Password: "wrong",
	}, false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPIRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/stores", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] == "" {
		t.Fatalf("expected a JSON error payload, got %s", rec.Body.String())
	}
}

func TestCalculatorComputesCommissionScenario(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/calculator", calculatorRequest{
		SalePriceIncVat: decimal.RequireFromString("120"),
		SaleVatRate:     decimal.RequireFromString("0.20"),
		Quantity:        1,
		Rules: []breakdown.CostRule{
			{
				Name:       "Komisyon",
				Rate:       decimal.RequireFromString("0.20"),
				Basis:      breakdown.PercentOfSale(decimal.RequireFromString("0.15")),
				Creditable: true,
			},
		},
	}, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result breakdown.Result
	decodeBody(t, rec, &result)

	if !result.SalePriceExVat.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected sale price ex VAT 100, got %s", result.SalePriceExVat)
	}
	if !result.NetProfit.Equal(decimal.RequireFromString("85")) {
		t.Fatalf("expected net profit 85, got %s", result.NetProfit)
	}
}

func TestCalculatorRejectsCircularRules(t *testing.T) {
	srv := newTestServer(t)

	rate := decimal.RequireFromString("0.20")
	half := decimal.RequireFromString("0.5")
	rec := doJSON(t, srv, http.MethodPost, "/api/calculator", calculatorRequest{
		SalePriceIncVat: decimal.RequireFromString("120"),
		SaleVatRate:     rate,
		Quantity:        1,
		Rules: []breakdown.CostRule{
			{Name: "a", Rate: rate, Basis: breakdown.PercentOfItem("b", half)},
			{Name: "b", Rate: rate, Basis: breakdown.PercentOfItem("a", half)},
		},
	}, true)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for circular rules, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCalculatorRejectsNegativePrice(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/calculator", calculatorRequest{
		SalePriceIncVat: decimal.RequireFromString("-1"),
		SaleVatRate:     decimal.RequireFromString("0.20"),
		Quantity:        1,
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative price, got %d", rec.Code)
	}
}

func TestCalculatorUsesSavedPreset(t *testing.T) {
	srv := newTestServer(t)

	saveRec := doJSON(t, srv, http.MethodPost, "/api/presets", savePresetRequest{
		Name:        "komisyon-only",
		SaleVatRate: decimal.RequireFromString("0.20"),
		Rules: []breakdown.CostRule{
			{
				Name:       "Komisyon",
				Rate:       decimal.RequireFromString("0.20"),
				Basis:      breakdown.PercentOfSale(decimal.RequireFromString("0.15")),
				Creditable: true,
			},
		},
	}, true)
	if saveRec.Code != http.StatusOK {
		t.Fatalf("expected 200 saving preset, got %d: %s", saveRec.Code, saveRec.Body.String())
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/calculator", calculatorRequest{
		Preset:          "komisyon-only",
		SalePriceIncVat: decimal.RequireFromString("120"),
		Quantity:        1,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result breakdown.Result
	decodeBody(t, rec, &result)
	if len(result.Costs) != 1 || result.Costs[0].Name != "Komisyon" {
		t.Fatalf("expected preset rules to drive the breakdown, got %+v", result.Costs)
	}
	if !result.SalePriceExVat.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected preset VAT rate to apply, got sale price ex VAT %s", result.SalePriceExVat)
	}
}

func TestCalculatorUnknownPresetReturns404(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/calculator", calculatorRequest{
		Preset:          "nope",
		SalePriceIncVat: decimal.RequireFromString("120"),
		Quantity:        1,
	}, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown preset, got %d", rec.Code)
	}
}

func TestMonthlyVatEndpointReconcilesAllSources(t *testing.T) {
	srv := newTestServer(t)

	createRec := doJSON(t, srv, http.MethodPost, "/api/stores", createStoreRequest{Name: "Dükkanım"}, true)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating store, got %d: %s", createRec.Code, createRec.Body.String())
	}
	var seller store.SellerStore
	decodeBody(t, createRec, &seller)

	base := "/api/stores/" + seller.ID

	rec := doJSON(t, srv, http.MethodPut, base+"/sales-vat/2024/3", reconcile.SalesVatSummary{
		TotalSalesAmount: decimal.RequireFromString("6000"),
		TotalVatAmount:   decimal.RequireFromString("1000"),
		ItemsSold:        50,
	}, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 saving sales vat, got %d: %s", rec.Code, rec.Body.String())
	}

	vatRate := decimal.RequireFromString("20")
	rec = doJSON(t, srv, http.MethodPut, base+"/invoice-totals/2024/3", []reconcile.InvoiceTypeAggregate{
		{
			TypeCode:       "KOMISYON",
			TypeName:       "Komisyon Faturası",
			InvoiceCount:   3,
			TotalAmount:    decimal.RequireFromString("1800"),
			TotalVatAmount: decimal.RequireFromString("300"),
			VatRate:        &vatRate,
		},
		{
			TypeCode:       "TZM_TAZMIN",
			TypeName:       "Tazminat",
			InvoiceCount:   1,
			TotalAmount:    decimal.RequireFromString("100"),
			TotalVatAmount: decimal.Zero,
		},
	}, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 saving invoice totals, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, base+"/cogs/2024/3", reconcile.CogsVatSummary{
		TotalCostIncVat:    decimal.RequireFromString("1200"),
		TotalCostVatAmount: decimal.RequireFromString("200"),
		ItemsSold:          50,
	}, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 saving cogs, got %d: %s", rec.Code, rec.Body.String())
	}

	expRate := decimal.RequireFromString("0.20")
	expVat := decimal.RequireFromString("50")
	rec = doJSON(t, srv, http.MethodPost, base+"/expenses", expenseRequest{
		Date:         "2024-03-10",
		CategoryName: "Muhasebe",
		Amount:       decimal.RequireFromString("250"),
		VatRate:      &expRate,
		VatAmount:    &expVat,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating expense, got %d: %s", rec.Code, rec.Body.String())
	}

	// An expense outside the month must not move the numbers.
	rec = doJSON(t, srv, http.MethodPost, base+"/expenses", expenseRequest{
		Date:         "2024-04-01",
		CategoryName: "Muhasebe",
		Amount:       decimal.RequireFromString("999"),
		VatRate:      &expRate,
		VatAmount:    &expVat,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating expense, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, base+"/vat/2024/3", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary reconcile.Summary
	decodeBody(t, rec, &summary)

	if !summary.SalesVatCollected.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("expected sales VAT 1000, got %s", summary.SalesVatCollected)
	}
	if !summary.InvoiceVatPaid.Equal(decimal.RequireFromString("300")) {
		t.Fatalf("expected invoice VAT 300, got %s", summary.InvoiceVatPaid)
	}
	if !summary.CogsVatPaid.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected COGS VAT 200, got %s", summary.CogsVatPaid)
	}
	if !summary.ExpenseVatPaid.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected expense VAT 50, got %s", summary.ExpenseVatPaid)
	}
	if !summary.NetVat.Equal(decimal.RequireFromString("450")) {
		t.Fatalf("expected net VAT 450, got %s", summary.NetVat)
	}
	if !summary.Payable {
		t.Fatal("expected a payable month")
	}
	if len(summary.InvoiceLines) != 1 {
		t.Fatalf("expected the zero-VAT invoice line to be dropped, got %d lines", len(summary.InvoiceLines))
	}
	if len(summary.Expenses) != 1 {
		t.Fatalf("expected 1 in-month expense line, got %d", len(summary.Expenses))
	}
}

func TestExpenseEndpointsScopeByStore(t *testing.T) {
	srv := newTestServer(t)

	recA := doJSON(t, srv, http.MethodPost, "/api/stores", createStoreRequest{Name: "A"}, true)
	recB := doJSON(t, srv, http.MethodPost, "/api/stores", createStoreRequest{Name: "B"}, true)
	var storeA, storeB store.SellerStore
	decodeBody(t, recA, &storeA)
	decodeBody(t, recB, &storeB)

	rec := doJSON(t, srv, http.MethodPost, "/api/stores/"+storeA.ID+"/expenses", expenseRequest{
		Date:         "2024-03-10",
		CategoryName: "Kira",
		Amount:       decimal.RequireFromString("100"),
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created reconcile.ExpenseRecord
	decodeBody(t, rec, &created)

	rec = doJSON(t, srv, http.MethodDelete, "/api/stores/"+storeB.ID+"/expenses/"+created.ID, nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting through the wrong store, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/stores/"+storeA.ID+"/expenses/"+created.ID, nil, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting through the owning store, got %d", rec.Code)
	}
}

func TestUnknownStoreReturns404(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/stores/does-not-exist/expenses", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
