// Package api exposes the HTTP surface of the dispatch service: the customer
// pickup resource, the vendor callback boundary and the audit query endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scraphaul/dispatch/core/dispatch"
	"github.com/scraphaul/dispatch/core/dispatch/audit"
	corestore "github.com/scraphaul/dispatch/core/store"
	"github.com/scraphaul/dispatch/infra/logger"
)

// Handler bundles the dependencies of the HTTP layer.
type Handler struct {
	store corestore.PickupStore
	coord *dispatch.Coordinator
	arb   *dispatch.Arbiter
	log   logger.Logger
}

// NewHandler wires the HTTP layer to the dispatch engine.
func NewHandler(st corestore.PickupStore, coord *dispatch.Coordinator, arb *dispatch.Arbiter) *Handler {
	return &Handler{store: st, coord: coord, arb: arb, log: logger.New("api")}
}

// Router builds the service routes. trail and logsToken may be zero-valued;
// the audit endpoint is mounted only when both are set.
func (h *Handler) Router(trail audit.LogStore, logsToken string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/pickups", func(r chi.Router) {
		r.Post("/", h.createPickup)
		r.Get("/{id}", h.getPickup)
		r.Post("/{id}/retry", h.retryPickup)
		r.Post("/{id}/cancel", h.cancelPickup)
	})
	r.Route("/vendors/callbacks", func(r chi.Router) {
		r.Post("/accept", h.vendorAccept)
		r.Post("/reject", h.vendorReject)
		r.Post("/on-the-way", h.vendorOnTheWay)
		r.Post("/done", h.vendorDone)
	})
	if trail != nil && logsToken != "" {
		r.Get("/dispatch/logs", h.auditLogs(trail, logsToken))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps store errors onto HTTP statuses: lost conditional writes
// are 409, unknown pickups 404, anything else 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case corestore.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "pickup not found"})
	case corestore.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "state changed concurrently"})
	default:
		h.log.Errorf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
