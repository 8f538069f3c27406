package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/micro-ha/remeha-home/addon/internal/auth"
	"github.com/micro-ha/remeha-home/addon/internal/pairing"
	"github.com/micro-ha/remeha-home/addon/internal/storage"
)

// credentialsInput accepts either separate fields or the combined
// "email|password" string.
type credentialsInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Credentials string `json:"credentials"`
}

func (in credentialsInput) resolve() (string, string, error) {
	if in.Credentials != "" {
		return pairing.ParseCredentials(in.Credentials)
	}
	if in.Email == "" || in.Password == "" {
		return "", "", pairing.ErrInvalidCredentials
	}
	return in.Email, in.Password, nil
}

// CreatePairingSession logs in to the vendor account.
func (a *API) CreatePairingSession(w http.ResponseWriter, r *http.Request) {
	var payload credentialsInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	email, password, err := payload.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}
	session, err := a.pairing.Login(r.Context(), email, password)
	if err != nil {
		a.writeLoginError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// ListPairingDevices lists the climate zones of the session's account.
func (a *API) ListPairingDevices(w http.ResponseWriter, r *http.Request, sessionID string) {
	items, err := a.pairing.ListDevices(r.Context(), sessionID)
	if errors.Is(err, pairing.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "Pairing session not found or expired")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "list_failed", err.Error())
		return
	}
	body := map[string]any{"items": items}
	if withDebug, _ := strconv.ParseBool(r.URL.Query().Get("debug")); withDebug {
		debug, _ := a.pairing.Debug(sessionID)
		body["debug"] = debug
	}
	writeJSON(w, http.StatusOK, body)
}

type addDevicesInput struct {
	IDs []string `json:"ids"`
}

// AddPairingDevices pairs the selected climate zones.
func (a *API) AddPairingDevices(w http.ResponseWriter, r *http.Request, sessionID string) {
	var payload addDevicesInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	added, err := a.pairing.AddDevices(r.Context(), sessionID, payload.IDs)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"items": added})
	case errors.Is(err, pairing.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "Pairing session not found or expired")
	case errors.Is(err, pairing.ErrNoDevices), errors.Is(err, pairing.ErrUnknownDevice):
		writeError(w, http.StatusBadRequest, "invalid_selection", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "pairing_failed", err.Error())
	}
}

// RepairDevice re-authorizes an already paired device.
func (a *API) RepairDevice(w http.ResponseWriter, r *http.Request, id string) {
	var payload credentialsInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	email, password, err := payload.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}
	err = a.pairing.Repair(r.Context(), id, email, password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	default:
		a.writeLoginError(w, err)
	}
}

func (a *API) writeLoginError(w http.ResponseWriter, err error) {
	var stepErr *auth.StepError
	if errors.As(err, &stepErr) {
		a.logger.Warn("vendor login failed", "step", stepErr.Step, "status", stepErr.Status)
		writeError(w, http.StatusUnauthorized, "login_failed", stepErr.Error())
		return
	}
	if errors.Is(err, pairing.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}
	writeError(w, http.StatusInternalServerError, "login_failed", err.Error())
}
