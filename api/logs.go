package api

import (
	"net/http"
	"time"

	"github.com/scraphaul/dispatch/core/dispatch/audit"
)

// auditLogs exposes the offer trail via GET /dispatch/logs. Requests must
// carry "Authorization: Bearer <token>".
func (h *Handler) auditLogs(trail audit.LogStore, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		q := audit.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.PickupID = r.URL.Query().Get("pickup_id")
		q.VendorRef = r.URL.Query().Get("vendor_ref")
		if a := r.URL.Query().Get("action"); a != "" {
			q.Action = audit.Action(a)
		}
		records, err := trail.Query(r.Context(), q)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
