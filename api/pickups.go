package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scraphaul/dispatch/core/model"
)

type createPickupRequest struct {
	CustomerID string             `json:"customer_id"`
	Address    string             `json:"address"`
	Location   *model.GeoPoint    `json:"location"`
	TimeSlot   model.TimeSlot     `json:"time_slot"`
	Items      []model.PickupItem `json:"items"`
}

// createPickup persists the request and starts the vendor search in the
// background. The response returns before any vendor has been contacted.
func (h *Handler) createPickup(w http.ResponseWriter, r *http.Request) {
	var req createPickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	p := model.Pickup{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		Address:    req.Address,
		Location:   req.Location,
		TimeSlot:   req.TimeSlot,
		Items:      req.Items,
		CreatedAt:  time.Now(),
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	created, err := h.store.Create(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// The request context dies with the response; the search runs on its own.
	go func() {
		if _, err := h.coord.Dispatch(context.Background(), created.ID); err != nil {
			h.log.Errorf("dispatch of %s failed: %v", created.ID, err)
		}
	}()

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getPickup(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// retryPickup restarts the vendor search for a pickup stuck without an
// assignment. The rejection ledger is kept, so previously excluded vendors
// stay excluded.
func (h *Handler) retryPickup(w http.ResponseWriter, r *http.Request) {
	p, err := h.coord.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) cancelPickup(w http.ResponseWriter, r *http.Request) {
	p, err := h.coord.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
