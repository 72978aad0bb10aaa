package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	DeviceCode  *string       `json:"device_code,omitempty"`
	Type        device.Type   `json:"type"`
	Room        device.Room   `json:"room,omitempty"`
	Address     string        `json:"address,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      device.Status `json:"status,omitempty"`
}

// handleListDevices returns all devices.
//
// Query parameters:
//   - type: filter by device type
//   - room: filter by room
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to list devices")
		return
	}

	typ := device.Type(r.URL.Query().Get("type"))
	room := device.Room(r.URL.Query().Get("room"))
	if typ != "" || room != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if (typ == "" || d.Type == typ) && (room == "" || d.Room == room) {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{
		ID:          req.ID,
		Name:        req.Name,
		DeviceCode:  req.DeviceCode,
		Type:        req.Type,
		Room:        req.Room,
		Address:     req.Address,
		Description: req.Description,
		Status:      req.Status,
	}
	if err := s.registry.Create(r.Context(), dev); err != nil {
		s.writeServiceError(w, err, "failed to create device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleControlDevice turns a device on, off or toggles it.
//
// The body is {"action": "on"|"off"|"toggle", ...params}. Parameters may
// be given at the top level ({"action":"on","brightness":40}) or nested
// under "params".
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSONLoose(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action, _ := body["action"].(string) //nolint:errcheck // checked below
	if action == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "action is required")
		return
	}

	params := control.Params{}
	if nested, ok := body["params"].(map[string]any); ok {
		for k, v := range nested {
			params[k] = v
		}
	}
	for k, v := range body {
		if k != "action" && k != "params" {
			params[k] = v
		}
	}

	result, err := s.control.RequestTransition(r.Context(), chi.URLParam(r, "id"),
		control.Intent(action), params, userFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err, "failed to control device")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeviceLogs returns a device's log, newest first.
//
// Query parameters:
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
//   - action, source: exact-match filters
func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "failed to get device")
		return
	}

	q := r.URL.Query()
	limit, ok := optionalInt(q.Get("limit"))
	if !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	offset, ok := optionalInt(q.Get("offset"))
	if !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	page, err := s.logs.ListByDevice(r.Context(), audit.Filter{
		DeviceID: id,
		Action:   q.Get("action"),
		Source:   q.Get("source"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to list device logs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// optionalInt parses an optional integer query value; empty reads as 0.
func optionalInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
