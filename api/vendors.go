package api

import (
	"encoding/json"
	"net/http"

	"github.com/scraphaul/dispatch/core/model"
)

// vendorCallback is the inbound body of every vendor callback. Vendor
// backends are not uniform in their field naming, so the common aliases are
// accepted and normalized here, at the parse boundary.
type vendorCallback struct {
	PickupID       string `json:"pickup_id"`
	PickupIDCamel  string `json:"pickupId"`
	VendorRef      string `json:"vendor_ref"`
	VendorRefCamel string `json:"vendorRef"`
	VendorID       string `json:"vendor_id"`
	VendorIDCamel  string `json:"vendorId"`
}

func (c vendorCallback) normalize() (pickupID, vendorRef string) {
	pickupID = firstNonEmpty(c.PickupID, c.PickupIDCamel)
	vendorRef = firstNonEmpty(c.VendorRef, c.VendorRefCamel, c.VendorID, c.VendorIDCamel)
	return pickupID, vendorRef
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) decodeCallback(w http.ResponseWriter, r *http.Request) (pickupID, vendorRef string, ok bool) {
	var cb vendorCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return "", "", false
	}
	pickupID, vendorRef = cb.normalize()
	if pickupID == "" || vendorRef == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "pickup_id and vendor_ref are required"})
		return "", "", false
	}
	return pickupID, vendorRef, true
}

// vendorAccept elects the caller as the pickup's vendor. A lost race, a
// stale offer or an expired window all come back as 409.
func (h *Handler) vendorAccept(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.decodeCallback(w, r)
	if !ok {
		return
	}
	p, err := h.arb.ConfirmAcceptance(r.Context(), pickupID, vendorRef)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type rejectResponse struct {
	Pickup model.Pickup `json:"pickup"`
	// Ignored is set when the rejection arrived after the offer had already
	// been resolved; nothing changed.
	Ignored bool `json:"ignored"`
}

// vendorReject records the rejection and moves the search to the next
// candidate before responding. A late rejection is acknowledged with
// ignored=true rather than an error.
func (h *Handler) vendorReject(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.decodeCallback(w, r)
	if !ok {
		return
	}
	p, ignored, err := h.arb.HandleRejection(r.Context(), pickupID, vendorRef)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rejectResponse{Pickup: p, Ignored: ignored})
}

func (h *Handler) vendorOnTheWay(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.decodeCallback(w, r)
	if !ok {
		return
	}
	p, err := h.arb.MarkOnTheWay(r.Context(), pickupID, vendorRef)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) vendorDone(w http.ResponseWriter, r *http.Request) {
	pickupID, vendorRef, ok := h.decodeCallback(w, r)
	if !ok {
		return
	}
	p, err := h.arb.MarkCompleted(r.Context(), pickupID, vendorRef)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
