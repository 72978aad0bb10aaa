package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-home/internal/schedule"
)

// handleListSchedules returns the acting user's schedules. Anonymous
// requests see every schedule.
//
// Query parameters:
//   - device_id: filter by device
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.List(r.Context(), schedule.Filter{
		UserID:   userFromContext(r.Context()),
		DeviceID: r.URL.Query().Get("device_id"),
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules, "count": len(schedules)})
}

// handleGetSchedule returns one schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Get(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err, "failed to get schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleCreateSchedule creates a schedule owned by the acting user.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sched, err := s.schedules.Create(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		s.writeServiceError(w, err, "failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleUpdateSchedule changes the given fields of a schedule.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sched, err := s.schedules.Update(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()), req)
	if err != nil {
		s.writeServiceError(w, err, "failed to update schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleToggleSchedule flips a schedule between active and inactive.
func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Toggle(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err, "failed to toggle schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleDeleteSchedule removes a schedule.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.schedules.Delete(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context())); err != nil {
		s.writeServiceError(w, err, "failed to delete schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
