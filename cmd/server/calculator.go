package main

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/breakdown"
	"github.com/esnafdesk/esnafdesk/internal/store"
)

// calculatorRequest is one pricing scenario. When Preset is set, the named
// preset supplies the rule set and sale VAT rate; the remaining fields come
// from the request either way.
type calculatorRequest struct {
	Preset          string               `json:"preset,omitempty"`
	SalePriceIncVat decimal.Decimal      `json:"salePriceIncVat"`
	SaleVatRate     decimal.Decimal      `json:"saleVatRate"`
	Quantity        int64                `json:"quantity"`
	Rules           []breakdown.CostRule `json:"rules,omitempty"`
	IncomeTaxRate   decimal.Decimal      `json:"incomeTaxRate"`
	TargetMargin    decimal.Decimal      `json:"targetMargin"`
}

func (s *server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	var req calculatorRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := breakdown.Input{
		SalePriceIncVat: req.SalePriceIncVat,
		SaleVatRate:     req.SaleVatRate,
		Quantity:        req.Quantity,
		Rules:           req.Rules,
		IncomeTaxRate:   req.IncomeTaxRate,
		TargetMargin:    req.TargetMargin,
	}
	if req.Preset != "" {
		preset, err := s.store.GetPreset(req.Preset)
		if errors.Is(err, store.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "preset not found")
			return
		}
		if err != nil {
			log.Printf("load preset: %v", err)
			errorJSON(w, http.StatusInternalServerError, "failed to load preset")
			return
		}
		in.Rules = preset.Rules
		in.SaleVatRate = preset.SaleVatRate
	}

	result, err := breakdown.Compute(in)
	switch {
	case errors.Is(err, breakdown.ErrCircularBasis), errors.Is(err, breakdown.ErrUnknownBasis):
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type savePresetRequest struct {
	Name        string               `json:"name"`
	SaleVatRate decimal.Decimal      `json:"saleVatRate"`
	Rules       []breakdown.CostRule `json:"rules"`
}

func (s *server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errorJSON(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Rules) == 0 {
		errorJSON(w, http.StatusBadRequest, "rules must not be empty")
		return
	}

	if err := s.store.SavePreset(req.Name, req.SaleVatRate, req.Rules); err != nil {
		log.Printf("save preset: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to save preset")
		return
	}

	preset, err := s.store.GetPreset(req.Name)
	if err != nil {
		log.Printf("reload preset: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load preset")
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

func (s *server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := s.store.GetPreset(chi.URLParam(r, "name"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		log.Printf("get preset: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load preset")
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

func (s *server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.store.ListPresets()
	if err != nil {
		log.Printf("list presets: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list presets")
		return
	}
	writeJSON(w, http.StatusOK, presets)
}
