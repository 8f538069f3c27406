// Package pairing adds Remeha climate zones to the add-on and re-authorizes
// devices whose refresh token stopped working.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/micro-ha/remeha-home/addon/internal/devicesync"
	"github.com/micro-ha/remeha-home/addon/internal/model"
)

const DefaultSessionTTL = 10 * time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("pairing session not found")
	ErrUnknownDevice      = errors.New("device not offered by this account")
	ErrNoDevices          = errors.New("no devices selected")
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.TokenData, error)
}

// Lister is the part of the vendor client used while pairing.
type Lister interface {
	Devices(ctx context.Context) ([]model.DeviceState, error)
	Debug(ctx context.Context) (json.RawMessage, error)
}

type ListerFactory func(accessToken string) Lister

type DeviceStore interface {
	UpsertDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, id string) (model.Device, error)
}

type TokenStore interface {
	SaveTokens(ctx context.Context, id string, tokens model.TokenData) error
}

// Activator (re)starts the sync instance of a device.
type Activator interface {
	Add(ctx context.Context, id string) (*devicesync.Instance, error)
}

// Session is one account login awaiting device selection.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	tokens  model.TokenData
	offered map[string]model.DeviceState
	debug   json.RawMessage
}

// Candidate is a climate zone offered for pairing.
type Candidate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Paired bool   `json:"paired"`
}

type Service struct {
	auth      Authenticator
	newLister ListerFactory
	devices   DeviceStore
	tokens    TokenStore
	activator Activator
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(
	auth Authenticator,
	newLister ListerFactory,
	devices DeviceStore,
	tokens TokenStore,
	activator Activator,
	ttl time.Duration,
	logger *slog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auth:      auth,
		newLister: newLister,
		devices:   devices,
		tokens:    tokens,
		activator: activator,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.With("component", "pairing"),
		sessions:  map[string]*Session{},
	}
}

// ParseCredentials splits the "email|password" form used by the pairing view.
func ParseCredentials(credentials string) (email, password string, err error) {
	email, password, ok := strings.Cut(credentials, "|")
	email = strings.TrimSpace(email)
	if !ok || email == "" || password == "" {
		return "", "", ErrInvalidCredentials
	}
	return email, password, nil
}

// Login authenticates the account and opens a pairing session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	tokens, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}

	now := s.now().UTC()
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		tokens:    tokens,
	}
	s.mu.Lock()
	s.sweepLocked(now)
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("pairing session opened", "session_id", session.ID)
	return *session, nil
}

// ListDevices returns the climate zones of the session's account.
func (s *Service) ListDevices(ctx context.Context, sessionID string) ([]Candidate, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	lister := s.newLister(session.tokens.AccessToken)

	debug, err := lister.Debug(ctx)
	if err != nil {
		s.logger.Debug("pairing debug payload fetch failed", "err", err)
	}
	states, err := lister.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	offered := make(map[string]model.DeviceState, len(states))
	candidates := make([]Candidate, 0, len(states))
	for _, state := range states {
		offered[state.ID] = state
		_, lookupErr := s.devices.GetDevice(ctx, state.ID)
		candidates = append(candidates, Candidate{ID: state.ID, Name: state.Name, Paired: lookupErr == nil})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	s.mu.Lock()
	session.offered = offered
	session.debug = debug
	s.mu.Unlock()
	return candidates, nil
}

// Debug returns the raw dashboard captured by the last ListDevices call.
func (s *Service) Debug(sessionID string) (json.RawMessage, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return session.debug, nil
}

// AddDevices stores the selected zones with the session tokens and starts
// syncing them.
func (s *Service) AddDevices(ctx context.Context, sessionID string, ids []string) ([]model.Device, error) {
	if len(ids) == 0 {
		return nil, ErrNoDevices
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	offered := session.offered
	s.mu.Unlock()
	if offered == nil {
		if _, err := s.ListDevices(ctx, sessionID); err != nil {
			return nil, err
		}
		s.mu.Lock()
		offered = session.offered
		s.mu.Unlock()
	}

	added := make([]model.Device, 0, len(ids))
	for _, id := range ids {
		state, ok := offered[id]
		if !ok {
			return added, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
		device := model.Device{ID: state.ID, Name: state.Name}
		if err := s.devices.UpsertDevice(ctx, device); err != nil {
			return added, fmt.Errorf("store device %s: %w", id, err)
		}
		if err := s.tokens.SaveTokens(ctx, id, session.tokens); err != nil {
			return added, fmt.Errorf("store tokens %s: %w", id, err)
		}
		if _, err := s.activator.Add(ctx, id); err != nil {
			return added, err
		}
		s.logger.Info("device paired", "device_id", id)
		added = append(added, device)
	}
	return added, nil
}

// Repair logs in again for an already paired device, stores the new tokens
// and restarts its sync instance.
func (s *Service) Repair(ctx context.Context, deviceID, email, password string) error {
	if _, err := s.devices.GetDevice(ctx, deviceID); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	tokens, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := s.tokens.SaveTokens(ctx, deviceID, tokens); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	if _, err := s.activator.Add(ctx, deviceID); err != nil {
		return err
	}
	s.logger.Info("device repaired", "device_id", deviceID)
	return nil
}

func (s *Service) session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now().UTC())
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) sweepLocked(now time.Time) {
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
