package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/config"
	"github.com/esnafdesk/esnafdesk/internal/db"
	"github.com/esnafdesk/esnafdesk/internal/migrations"
	"github.com/esnafdesk/esnafdesk/internal/reconcile"
	"github.com/esnafdesk/esnafdesk/internal/seed"
	"github.com/esnafdesk/esnafdesk/internal/store"
	"github.com/esnafdesk/esnafdesk/internal/vatrates"
)

type server struct {
	auth  *authService
	db    *sql.DB
	store *store.Store
	rates vatrates.Table
}

func main() {
	cfg := config.Load()

	rates, err := parseRateTable(cfg.VatRates)
	if err != nil {
		log.Fatalf("invalid VAT_RATES: %v", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database, "migrations"); err != nil {
			log.Fatalf("failed to run database migrations: %v", err)
		}
	}

	if _, err := seed.Run(database, seed.Config{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
	}); err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}

	srv := &server{
		auth:  newAuthService(database, cfg.SessionSecret),
		db:    database,
		store: store.New(database),
		rates: rates,
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stores", s.handleListStores)
		r.Post("/stores", s.handleCreateStore)
		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Get("/", s.handleGetStore)
			r.Get("/expenses", s.handleListExpenses)
			r.Post("/expenses", s.handleCreateExpense)
			r.Put("/expenses/{expenseID}", s.handleUpdateExpense)
			r.Delete("/expenses/{expenseID}", s.handleDeleteExpense)
			r.Put("/invoice-totals/{year}/{month}", s.handleReplaceInvoiceTotals)
			r.Get("/invoice-totals/{year}/{month}", s.handleListInvoiceTotals)
			r.Put("/sales-vat/{year}/{month}", s.handleUpsertSalesVat)
			r.Get("/sales-vat/{year}/{month}", s.handleGetSalesVat)
			r.Put("/cogs/{year}/{month}", s.handleUpsertCogs)
			r.Get("/cogs/{year}/{month}", s.handleGetCogs)
			r.Get("/vat/{year}/{month}", s.handleMonthlyVat)
		})

		r.Post("/calculator", s.handleCalculator)
		r.Get("/presets", s.handleListPresets)
		r.Post("/presets", s.handleSavePreset)
		r.Get("/presets/{name}", s.handleGetPreset)
		r.Get("/vat-rates", s.handleVatRates)
	})

	return r
}

// parseRateTable turns the comma-separated percent list from configuration
// into a validated bracket table.
func parseRateTable(raw string) (vatrates.Table, error) {
	parts := strings.Split(raw, ",")
	rates := make([]decimal.Decimal, 0, len(parts))
	for _, part := range parts {
		rate, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return vatrates.Table{}, fmt.Errorf("parse rate %q: %w", part, err)
		}
		rates = append(rates, rate)
	}
	return vatrates.New(rates...)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	valid, err := s.auth.validateCredentials(req.Email, req.Password)
	if err != nil {
		log.Printf("login: %v", err)
		errorJSON(w, http.StatusInternalServerError, "authentication error")
		return
	}
	if !valid {
		errorJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.auth.setSessionCookie(w, req.Email)
	writeJSON(w, http.StatusOK, map[string]string{"email": req.Email})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleVatRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rates": s.rates.Rates()})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(r, s.auth) {
			errorJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// monthParam reads the {year}/{month} URL segments.
func monthParam(r *http.Request) (reconcile.Month, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2100 {
		return reconcile.Month{}, fmt.Errorf("invalid year")
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		return reconcile.Month{}, fmt.Errorf("invalid month")
	}
	return reconcile.Month{Year: year, Month: time.Month(month)}, nil
}
