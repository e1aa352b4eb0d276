package main

import (
	"log"
	"net/http"

	"github.com/esnafdesk/esnafdesk/internal/reconcile"
)

func (s *server) handleReplaceInvoiceTotals(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows []reconcile.InvoiceTypeAggregate
	if err := decodeJSON(r, &rows); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, row := range rows {
		if row.TypeCode == "" {
			errorJSON(w, http.StatusBadRequest, "invoiceTypeCode is required")
			return
		}
	}

	if err := s.store.ReplaceInvoiceTotals(storeID, month, rows); err != nil {
		log.Printf("replace invoice totals: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to save invoice totals")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListInvoiceTotals(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	totals, err := s.store.ListInvoiceTotals(storeID, month)
	if err != nil {
		log.Printf("list invoice totals: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load invoice totals")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *server) handleUpsertSalesVat(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	var summary reconcile.SalesVatSummary
	if err := decodeJSON(r, &summary); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.UpsertSalesVat(storeID, month, summary); err != nil {
		log.Printf("upsert sales vat: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to save sales VAT summary")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetSalesVat(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.store.GetSalesVat(storeID, month)
	if err != nil {
		log.Printf("get sales vat: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load sales VAT summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleUpsertCogs(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	var summary reconcile.CogsVatSummary
	if err := decodeJSON(r, &summary); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.UpsertCogs(storeID, month, summary); err != nil {
		log.Printf("upsert cogs: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to save COGS summary")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetCogs(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.store.GetCogs(storeID, month)
	if err != nil {
		log.Printf("get cogs: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load COGS summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMonthlyVat assembles the four stored sources of a month and runs the
// reconciliation over them.
func (s *server) handleMonthlyVat(w http.ResponseWriter, r *http.Request) {
	storeID, ok := s.requireStore(w, r)
	if !ok {
		return
	}
	month, err := monthParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	salesVat, err := s.store.GetSalesVat(storeID, month)
	if err != nil {
		log.Printf("monthly vat: sales: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load sales VAT summary")
		return
	}
	invoices, err := s.store.ListInvoiceTotals(storeID, month)
	if err != nil {
		log.Printf("monthly vat: invoices: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load invoice totals")
		return
	}
	cogsVat, err := s.store.GetCogs(storeID, month)
	if err != nil {
		log.Printf("monthly vat: cogs: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load COGS summary")
		return
	}
	expenses, err := s.store.ListExpenses(storeID)
	if err != nil {
		log.Printf("monthly vat: expenses: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load expenses")
		return
	}

	summary := reconcile.Reconcile(month, salesVat, invoices, cogsVat, expenses, s.rates)
	writeJSON(w, http.StatusOK, summary)
}
