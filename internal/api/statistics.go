package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-home/internal/usage"
)

// Statistics query limits.
const (
	defaultDeviceDays  = 7
	defaultOverallDays = 30
	maxStatisticsDays  = 366
)

// handleDeviceStatistics returns a device's daily statistics.
//
// Query parameters:
//   - days: number of days ending today (default 7, max 366)
func (s *Server) handleDeviceStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "failed to get device")
		return
	}

	days, ok := parseDays(r.URL.Query().Get("days"), defaultDeviceDays)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "days must be between 1 and 366")
		return
	}

	stats, err := s.stats.RecentDailyStats(r.Context(), id, days)
	if err != nil {
		s.writeServiceError(w, err, "failed to load statistics")
		return
	}

	var totals usage.DailyStatistic
	for _, st := range stats {
		totals.TurnOnCount += st.TurnOnCount
		totals.TotalUsageMinutes += st.TotalUsageMinutes
		totals.PowerConsumption += st.PowerConsumption
		totals.Cost += st.Cost
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  id,
		"days":       days,
		"statistics": stats,
		"totals": map[string]any{
			"turn_on_count":       totals.TurnOnCount,
			"total_usage_minutes": totals.TotalUsageMinutes,
			"power_consumption":   totals.PowerConsumption,
			"cost":                totals.Cost,
		},
	})
}

// handleOverallStatistics totals usage per device over a date range.
//
// Query parameters:
//   - from, to: inclusive dates (YYYY-MM-DD) in the site timezone
//   - days: used when from is absent (default 30)
func (s *Server) handleOverallStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().In(s.loc)

	to := now
	if raw := q.Get("to"); raw != "" {
		t, err := time.ParseInLocation(usage.DateLayout, raw, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "to must be YYYY-MM-DD")
			return
		}
		to = t
	}

	var from time.Time
	if raw := q.Get("from"); raw != "" {
		f, err := time.ParseInLocation(usage.DateLayout, raw, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "from must be YYYY-MM-DD")
			return
		}
		from = f
	} else {
		days, ok := parseDays(q.Get("days"), defaultOverallDays)
		if !ok {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "days must be between 1 and 366")
			return
		}
		from = to.AddDate(0, 0, -(days - 1))
	}

	summary, err := s.stats.Summary(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleRealtimeUsage lists devices that are running now with their usage
// so far.
func (s *Server) handleRealtimeUsage(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.stats.OpenSessions(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to load open sessions")
		return
	}

	var minutes int
	var kwh, cost float64
	for _, sess := range sessions {
		minutes += sess.RunningMinutes
		kwh += sess.EstimatedKWh
		cost += sess.EstimatedCost
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":        sessions,
		"count":           len(sessions),
		"running_minutes": minutes,
		"estimated_kwh":   kwh,
		"estimated_cost":  cost,
	})
}

// handleCleanupSessions closes sessions left open too long, without billing.
//
// Query parameters:
//   - max_age_hours: age threshold (default from usage.stale_session_hours)
func (s *Server) handleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	hours := s.usageCfg.StaleSessionHours
	if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "max_age_hours must be a positive integer")
			return
		}
		hours = n
	}
	if hours < 1 {
		hours = 24
	}

	closed, err := s.stats.CleanupStaleSessions(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		s.writeServiceError(w, err, "failed to clean up sessions")
		return
	}
	s.logger.Info("stale sessions cleaned up", "closed", closed, "max_age_hours", hours,
		"user_id", userFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"closed": closed, "max_age_hours": hours})
}

// parseDays reads a day count, falling back to def when raw is empty.
func parseDays(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxStatisticsDays {
		return 0, false
	}
	return n, true
}
