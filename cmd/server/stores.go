package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/store"
)

type createStoreRequest struct {
	Name        string `json:"name"`
	Marketplace string `json:"marketplace"`
}

func (s *server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Marketplace = strings.TrimSpace(req.Marketplace)
	if req.Name == "" {
		errorJSON(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Marketplace == "" {
		req.Marketplace = "trendyol"
	}

	st, err := s.store.CreateStore(req.Name, req.Marketplace)
	if err != nil {
		log.Printf("create store: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create store")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.store.ListStores()
	if err != nil {
		log.Printf("list stores: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list stores")
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (s *server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStore(chi.URLParam(r, "storeID"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "store not found")
		return
	}
	if err != nil {
		log.Printf("get store: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load store")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// expenseRequest is the wire shape of an expense write. Dates travel as
// calendar days, not timestamps.
type expenseRequest struct {
	Date         string           `json:"date"`
	CategoryName string           `json:"categoryName"`
	Description  string           `json:"description"`
	Amount       decimal.Decimal  `json:"amount"`
	VatRate      *decimal.Decimal `json:"vatRate"`
	VatAmount    *decimal.Decimal `json:"vatAmount"`
}

func (req expenseRequest) toInput() (store.ExpenseInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return store.ExpenseInput{}, errors.New("date must be formatted YYYY-MM-DD")
	}
	if strings.TrimSpace(req.CategoryName) == "" {
		return store.ExpenseInput{}, errors.New("categoryName is required")
	}
	if req.Amount.IsNegative() {
		return store.ExpenseInput{}, errors.New("amount must not be negative")
	}
	return store.ExpenseInput{
		Date:         date,
		CategoryName: strings.TrimSpace(req.CategoryName),
		Description:  strings.TrimSpace(req.Description),
		Amount:       req.Amount,
		VatRate:      req.VatRate,
		VatAmount:    req.VatAmount,
	}, nil
}

func (s *server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.toInput()
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.CreateExpense(storeID, in)
	if err != nil {
		log.Printf("create expense: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create expense")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.toInput()
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.store.UpdateExpense(storeID, chi.URLParam(r, "expenseID"), in)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "expense not found")
		return
	}
	if err != nil {
		log.Printf("update expense: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to update expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}

	err := s.store.DeleteExpense(storeID, chi.URLParam(r, "expenseID"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "expense not found")
		return
	}
	if err != nil {
		log.Printf("delete expense: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to delete expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}

	expenses, err := s.store.ListExpenses(storeID)
	if err != nil {
		log.Printf("list expenses: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// requireStore resolves the {storeID} URL segment to an existing store and
// writes the error response itself when it can't.
func (s *server) requireStore(w http.ResponseWriter, r *http.Request) (string, bool) {
	storeID := chi.URLParam(r, "storeID")
	_, err := s.store.GetStore(storeID)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "store not found")
		return "", false
	}
	if err != nil {
		log.Printf("resolve store: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load store")
		return "", false
	}
	return storeID, true
}
