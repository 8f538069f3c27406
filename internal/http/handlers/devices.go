package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/micro-ha/remeha-home/addon/internal/devicesync"
	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/storage"
)

type deviceView struct {
	model.DeviceSnapshot
	Active bool `json:"active"`
}

func (a *API) view(snapshot model.DeviceSnapshot) deviceView {
	status, reason, active := a.controller.Status(snapshot.ID)
	if active && status != "" {
		snapshot.Status = status
		snapshot.StatusReason = reason
	}
	return deviceView{DeviceSnapshot: snapshot, Active: active}
}

// ListDevices returns every paired device with its last published state.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	snapshots, err := a.devices.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	items := make([]deviceView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, a.view(snapshot))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDevice returns one device by id.
func (a *API) GetDevice(w http.ResponseWriter, r *http.Request, id string) {
	snapshot, err := a.devices.Snapshot(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.view(snapshot))
}

// DeleteDevice stops syncing the device and forgets it.
func (a *API) DeleteDevice(w http.ResponseWriter, r *http.Request, id string) {
	a.controller.Remove(id)
	if err := a.devices.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	if a.tokens != nil {
		if err := a.tokens.DeleteTokens(r.Context(), id); err != nil {
			a.logger.Warn("delete tokens failed", "device_id", id, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type targetTemperatureInput struct {
	Value *float64 `json:"value"`
}

// SetTargetTemperature forwards a room setpoint change to the device.
func (a *API) SetTargetTemperature(w http.ResponseWriter, r *http.Request, id string) {
	var payload targetTemperatureInput
	if err := decodeJSON(w, r, &payload); err != nil || payload.Value == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Expected {\"value\": <number>}")
		return
	}
	a.writeCommandResult(w, a.controller.SetTargetTemperature(r.Context(), id, *payload.Value))
}

type modeInput struct {
	Mode string `json:"mode"`
}

// SetMode switches the device between manual, auto and off.
func (a *API) SetMode(w http.ResponseWriter, r *http.Request, id string) {
	var payload modeInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	mode, err := model.ParseMode(payload.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be manual, auto or off")
		return
	}
	a.writeCommandResult(w, a.controller.SetMode(r.Context(), id, mode))
}

type fireplaceInput struct {
	Active *bool `json:"active"`
}

// SetFireplaceMode toggles fireplace mode on the device.
func (a *API) SetFireplaceMode(w http.ResponseWriter, r *http.Request, id string) {
	var payload fireplaceInput
	if err := decodeJSON(w, r, &payload); err != nil || payload.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Expected {\"active\": <bool>}")
		return
	}
	a.writeCommandResult(w, a.controller.SetFireplaceMode(r.Context(), id, *payload.Active))
}

func (a *API) writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	case errors.Is(err, devicesync.ErrInactive):
		writeError(w, http.StatusConflict, "device_inactive", "Device is not being synced")
	case errors.Is(err, devicesync.ErrCommandUnsupported):
		writeError(w, http.StatusConflict, "command_unsupported", "Device does not support this command")
	default:
		writeError(w, http.StatusBadRequest, "command_rejected", err.Error())
	}
}

type settingsInput struct {
	Name         *string `json:"name"`
	DebugEnabled *bool   `json:"debug_enabled"`
}

// PatchSettings renames the device or toggles its debug capture.
func (a *API) PatchSettings(w http.ResponseWriter, r *http.Request, id string) {
	var payload settingsInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	device, err := a.devices.GetDevice(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "patch_failed", err.Error())
		return
	}

	if payload.Name != nil {
		name := strings.TrimSpace(*payload.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "name must not be empty")
			return
		}
		device.Name = name
		if err := a.devices.UpsertDevice(r.Context(), device); err != nil {
			writeError(w, http.StatusInternalServerError, "patch_failed", err.Error())
			return
		}
	}
	if payload.DebugEnabled != nil {
		if err := a.devices.SetDebugEnabled(r.Context(), id, *payload.DebugEnabled); err != nil {
			writeError(w, http.StatusInternalServerError, "patch_failed", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// Debug returns the last raw dashboard payload captured for the device.
func (a *API) Debug(w http.ResponseWriter, r *http.Request, id string) {
	device, err := a.devices.GetDevice(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "debug_failed", err.Error())
		return
	}
	payload, err := a.devices.DebugPayload(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "debug_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debug_enabled": device.DebugEnabled, "payload": payload})
}
