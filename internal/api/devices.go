package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/access"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/command"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
)

// deviceView is the wire representation of a device. Online is computed at
// read time from the last telemetry timestamp; it is never stored.
type deviceView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Location   string       `json:"location"`
	OwnerEmail string       `json:"owner_email"`
	Online     bool         `json:"online"`
	Data       *device.Data `json:"data,omitempty"`
}

func newDeviceView(d *device.Device, now time.Time) deviceView {
	return deviceView{
		ID:         d.ID,
		Name:       d.Name,
		Location:   d.Location,
		OwnerEmail: d.OwnerEmail,
		Online:     d.Online(now),
		Data:       d.Data,
	}
}

// handleListDevices returns the devices visible to the caller, sorted by id.
// A "stale" flag reports whether the cache has fallen behind the store.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	visible := access.Filter(s.cache.Snapshot(), principal)

	now := time.Now()
	views := make([]deviceView, 0, len(visible))
	for _, dev := range visible {
		views = append(views, newDeviceView(dev, now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
		"stale":   s.cache.LastErr() != nil,
	})
}

// handleGetDevice returns a single device by ID. Devices outside the
// caller's view report not found rather than forbidden, so users cannot
// probe for other people's device ids.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := principalFromContext(r.Context())

	dev := s.cache.Get(id)
	if dev == nil || !access.CanControl(dev, principal) {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceView(dev, time.Now()))
}

// handleToggleRelay inverts a relay's last reported state.
func (s *Server) handleToggleRelay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := principalFromContext(r.Context())

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, "relay index must be an integer")
		return
	}

	if err := s.dispatcher.ToggleRelay(r.Context(), principal, id, index); err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"device": id,
		"relay":  index,
	})
}

// setBrightnessRequest is the request body for PUT /devices/{id}/brightness.
type setBrightnessRequest struct {
	Value *int `json:"value"`
}

// handleSetBrightness sets the dimmer output as a percentage.
func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := principalFromContext(r.Context())

	var req setBrightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value field is required")
		return
	}

	if err := s.dispatcher.SetBrightness(r.Context(), principal, id, *req.Value); err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"device":     id,
		"brightness": *req.Value,
	})
}

// writeCommandError maps dispatcher errors onto HTTP responses. Authorization
// failures are reported as not found for the same probing reason as
// handleGetDevice.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrValidation):
		writeBadRequest(w, err.Error())
	case errors.Is(err, command.ErrDeviceNotFound), errors.Is(err, command.ErrUnauthorized):
		writeNotFound(w, "device not found")
	default:
		s.logger.Error("device command failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "device command failed")
	}
}
