// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/controlplaneio-fluxcd/aegis/internal/service"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

type customerCreateRequest struct {
	ID      string `json:"id" validate:"omitempty,max=50,customer_id"`
	Name    string `json:"name" validate:"required,min=1,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Company string `json:"company" validate:"max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type customerUpdateRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Company *string `json:"company" validate:"omitempty,max=200"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
	Address *string `json:"address"`
	Notes   *string `json:"notes"`
	Active  *bool   `json:"is_active"`
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.CreateCustomer(r.Context(), service.CustomerInput{
		ID:      req.ID,
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Address: req.Address,
		Notes:   req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(w, r, "skip", 0, 1<<31-1, 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 1, 1000, store.DefaultLimit)
	if !ok {
		return
	}
	activeOnly, ok := queryBool(w, r, "active_only")
	if !ok {
		return
	}

	list, err := s.svc.ListCustomers(r.Context(), store.CustomerFilter{
		Page:       store.Page{Offset: skip, Limit: limit},
		ActiveOnly: activeOnly,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []store.Customer{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.UpdateCustomer(r.Context(), chi.URLParam(r, "customerID"), service.CustomerUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Address: req.Address,
		Notes:   req.Notes,
		Active:  req.Active,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteCustomerHandler removes the customer and its licenses.
func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCustomer(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
