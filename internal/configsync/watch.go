package configsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// EventSettingsUpdated is fired by the integration when its options change.
const EventSettingsUpdated = "remeha_home_config_updated"

const (
	readTimeout = 120 * time.Second
	maxBackoff  = 20 * time.Second
)

// Watcher subscribes to settings change events over the Home Assistant
// websocket API and reconnects with backoff.
type Watcher struct {
	baseURL string
	token   string
	logger  *slog.Logger
}

func NewWatcher(baseURL, token string, logger *slog.Logger) *Watcher {
	return &Watcher{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, logger: logger}
}

func (w *Watcher) Run(ctx context.Context, onSettingsUpdated func()) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		subscribed, err := w.runSession(ctx, onSettingsUpdated)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("settings event watcher disconnected", "err", err)
		}
		if subscribed {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (w *Watcher) runSession(ctx context.Context, onSettingsUpdated func()) (bool, error) {
	wsURL, err := toWebsocketURL(w.baseURL + "/api/websocket")
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	if gjson.GetBytes(msg, "type").String() != "auth_required" {
		return false, fmt.Errorf("unexpected handshake message %q", gjson.GetBytes(msg, "type").String())
	}

	authPayload := map[string]any{"type": "auth", "access_token": w.token}
	if err := conn.WriteJSON(authPayload); err != nil {
		return false, err
	}

	_, msg, err = conn.ReadMessage()
	if err != nil {
		return false, err
	}
	if kind := gjson.GetBytes(msg, "type").String(); kind != "auth_ok" {
		return false, fmt.Errorf("websocket auth failed: %s", kind)
	}

	subscribe := map[string]any{"id": 1, "type": "subscribe_events", "event_type": EventSettingsUpdated}
	if err := conn.WriteJSON(subscribe); err != nil {
		return false, err
	}
	w.logger.Info("subscribed to settings events")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return true, err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if isSettingsUpdatedEvent(msg) {
			onSettingsUpdated()
		}
	}
}

func isSettingsUpdatedEvent(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	return gjson.GetBytes(body, "type").String() == "event" &&
		gjson.GetBytes(body, "event.event_type").String() == EventSettingsUpdated
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
