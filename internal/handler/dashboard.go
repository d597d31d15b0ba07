package handler

import "net/http"

// Dashboard returns store-wide figures for administrators.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := h.dashboard.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardResponse(sum))
}
