package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// deviceResponse is a device snapshot plus the values derived from its
// registration data.
type deviceResponse struct {
	thing.Snapshot
	Climate          bool              `json:"climate"`
	Model            string            `json:"model,omitempty"`
	FirmwareVersion  string            `json:"firmware_version,omitempty"`
	TemperatureRange *temperatureRange `json:"temperature_range,omitempty"`
}

type temperatureRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func newDeviceResponse(t *thing.Thing) deviceResponse {
	resp := deviceResponse{Snapshot: t.Snapshot(), Climate: t.IsClimate()}
	resp.Model, _ = t.Model()
	resp.FirmwareVersion, _ = t.FirmwareVersion()
	if lo, hi, ok := t.TemperatureRange(); ok {
		resp.TemperatureRange = &temperatureRange{Min: lo, Max: hi}
	}
	return resp
}

// resolveDevice finds the device for the {name} URL parameter, by thing
// name first and custom name second.
func (s *Server) resolveDevice(r *http.Request) (*thing.Thing, bool) {
	name := chi.URLParam(r, "name")
	if name == "" {
		return nil, false
	}
	if t, ok := s.ctrl.Device(name); ok {
		return t, true
	}
	if thingName, ok := s.ctrl.LookupByCustomName(name); ok {
		return s.ctrl.Device(thingName)
	}
	return nil, false
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	climateOnly, _ := strconv.ParseBool(r.URL.Query().Get("climate")) //nolint:errcheck // absent means all
	things := s.ctrl.Devices()
	out := make([]deviceResponse, 0, len(things))
	for _, t := range things {
		if climateOnly && !t.IsClimate() {
			continue
		}
		out = append(out, newDeviceResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":   out,
		"count":     len(out),
		"connected": s.ctrl.IsConnected(),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveDevice(r)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(t))
}

func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveDevice(r)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if err := s.ctrl.RefreshDevice(r.Context(), t.Name); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "requested", "thing_name": t.Name})
}

type fieldResponse struct {
	ThingName string `json:"thing_name"`
	Field     string `json:"field"`
	Value     any    `json:"value"`
	Known     bool   `json:"known"`
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveDevice(r)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	field := chi.URLParam(r, "field")
	if _, ok := thing.LookupField(field); !ok {
		writeControllerError(w, fmt.Errorf("%w: %s", thing.ErrUnknownField, field))
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")) //nolint:errcheck // absent means false

	value, known := s.ctrl.GetField(r.Context(), t.Name, field, refresh)
	writeJSON(w, http.StatusOK, fieldResponse{ThingName: t.Name, Field: field, Value: value, Known: known})
}

type setFieldRequest struct {
	Value any `json:"value"`
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveDevice(r)
	if !ok {
		writeControllerError(w, fmt.Errorf("%w: %s", session.ErrUnknownDevice, chi.URLParam(r, "name")))
		return
	}
	field := chi.URLParam(r, "field")

	var req setFieldRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.ctrl.SetField(r.Context(), t.Name, field, req.Value); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "thing_name": t.Name, "field": field})
}
