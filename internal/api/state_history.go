package api

import (
	"net/http"
	"strconv"
)

const maxHistoryLimitParam = 500

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveDevice(r)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimitParam {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), t.Name, limit)
	if err != nil {
		s.logger.Warn("reading state history", "thing", t.Name, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thing_name": t.Name,
		"entries":    entries,
		"count":      len(entries),
	})
}
