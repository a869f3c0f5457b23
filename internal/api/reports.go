// ABOUTME: Usage report endpoint with optional inclusive date range

package api

import (
	"net/http"
	"time"

	"github.com/apextsgroup/chatdesk/internal/store"
)

// parseReportRange reads optional start/end query params. Accepts RFC3339
// timestamps or bare dates (YYYY-MM-DD); a bare end date covers the whole day.
func (s *Server) parseReportRange(w http.ResponseWriter, r *http.Request) (store.ReportRange, bool) {
	var rng store.ReportRange

	parse := func(raw string, endOfDay bool) (*time.Time, bool) {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			u := t.UTC()
			return &u, true
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, false
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		u := t.UTC()
		return &u, true
	}

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, ok := parse(raw, false)
		if !ok {
			s.sendJSONError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD")
			return rng, false
		}
		rng.Start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, ok := parse(raw, true)
		if !ok {
			s.sendJSONError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD")
			return rng, false
		}
		rng.End = t
	}

	return rng, true
}

// handleUsageReport handles GET /api/reports/usage.
func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	p := s.principal(w, r)
	if p == nil {
		return
	}

	rng, ok := s.parseReportRange(w, r)
	if !ok {
		return
	}

	report, err := s.store.GetUsageReport(r.Context(), p.Scope(), rng)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}
