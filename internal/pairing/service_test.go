package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/micro-ha/remeha-home/addon/internal/devicesync"
	"github.com/micro-ha/remeha-home/addon/internal/logging"
	"github.com/micro-ha/remeha-home/addon/internal/model"
)

type fakeAuth struct {
	tokens model.TokenData
	err    error
	logins []string
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (model.TokenData, error) {
	f.logins = append(f.logins, email)
	return f.tokens, f.err
}

type fakeLister struct {
	token  string
	states []model.DeviceState
}

func (f *fakeLister) Devices(context.Context) ([]model.DeviceState, error) {
	return f.states, nil
}

func (f *fakeLister) Debug(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"appliances":[]}`), nil
}

type memoryRepo struct {
	mu      sync.Mutex
	devices map[string]model.Device
	tokens  map[string]model.TokenData
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{devices: map[string]model.Device{}, tokens: map[string]model.TokenData{}}
}

func (m *memoryRepo) UpsertDevice(_ context.Context, device model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.ID] = device
	return nil
}

func (m *memoryRepo) GetDevice(_ context.Context, id string) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[id]
	if !ok {
		return model.Device{}, errors.New("not found")
	}
	return device, nil
}

func (m *memoryRepo) SaveTokens(_ context.Context, id string, tokens model.TokenData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = tokens
	return nil
}

type fakeActivator struct {
	added []string
}

func (f *fakeActivator) Add(_ context.Context, id string) (*devicesync.Instance, error) {
	f.added = append(f.added, id)
	return nil, nil
}

type fixture struct {
	auth      *fakeAuth
	lister    *fakeLister
	repo      *memoryRepo
	activator *fakeActivator
	service   *Service
}

func newFixture() *fixture {
	f := &fixture{
		auth: &fakeAuth{tokens: model.TokenData{AccessToken: "access-1", RefreshToken: "refresh-1"}},
		lister: &fakeLister{states: []model.DeviceState{
			{ID: "zone-2", Name: "Upstairs"},
			{ID: "zone-1", Name: "Living"},
		}},
		repo:      newMemoryRepo(),
		activator: &fakeActivator{},
	}
	newLister := func(token string) Lister {
		f.lister.token = token
		return f.lister
	}
	f.service = NewService(f.auth, newLister, f.repo, f.repo, f.activator, time.Minute, logging.Discard())
	return f
}

func TestParseCredentials(t *testing.T) {
	email, password, err := ParseCredentials("user@example.com|p|ss")
	if err != nil {
		t.Fatalf("ParseCredentials() error: %v", err)
	}
	if email != "user@example.com" || password != "p|ss" {
		t.Fatalf("got %q / %q", email, password)
	}
	for _, bad := range []string{"", "user@example.com", "|secret", "user@example.com|"} {
		if _, _, err := ParseCredentials(bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("ParseCredentials(%q) expected ErrInvalidCredentials, got %v", bad, err)
		}
	}
}

func TestPairingFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.devices["zone-2"] = model.Device{ID: "zone-2", Name: "Upstairs"}

	session, err := f.service.Login(ctx, "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if session.ID == "" || !session.ExpiresAt.After(session.CreatedAt) {
		t.Fatalf("unexpected session %+v", session)
	}

	candidates, err := f.service.ListDevices(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListDevices() error: %v", err)
	}
	want := []Candidate{
		{ID: "zone-1", Name: "Living"},
		{ID: "zone-2", Name: "Upstairs", Paired: true},
	}
	if diff := cmp.Diff(want, candidates); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}
	if f.lister.token != "access-1" {
		t.Fatalf("lister built with token %q", f.lister.token)
	}
	if debug, err := f.service.Debug(session.ID); err != nil || string(debug) != `{"appliances":[]}` {
		t.Fatalf("Debug() = %s, %v", debug, err)
	}

	added, err := f.service.AddDevices(ctx, session.ID, []string{"zone-1"})
	if err != nil {
		t.Fatalf("AddDevices() error: %v", err)
	}
	if len(added) != 1 || added[0].Name != "Living" {
		t.Fatalf("unexpected added devices %+v", added)
	}
	if f.repo.tokens["zone-1"].RefreshToken != "refresh-1" {
		t.Fatalf("tokens not stored for zone-1")
	}
	if diff := cmp.Diff([]string{"zone-1"}, f.activator.added); diff != "" {
		t.Fatalf("activations mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.service.AddDevices(ctx, session.ID, []string{"zone-9"}); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestAddDevicesListsWhenNotListedYet(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session, err := f.service.Login(ctx, "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if _, err := f.service.AddDevices(ctx, session.ID, []string{"zone-2"}); err != nil {
		t.Fatalf("AddDevices() error: %v", err)
	}
	if _, ok := f.repo.devices["zone-2"]; !ok {
		t.Fatalf("zone-2 not stored")
	}
}

func TestLoginFailureOpensNoSession(t *testing.T) {
	f := newFixture()
	f.auth.err = errors.New("credential submit failed")

	if _, err := f.service.Login(context.Background(), "user@example.com", "wrong"); err == nil {
		t.Fatalf("expected login error")
	}
	if len(f.service.sessions) != 0 {
		t.Fatalf("session opened despite login failure")
	}
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	session, err := f.service.Login(ctx, "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := f.service.ListDevices(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRepair(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if err := f.service.Repair(ctx, "zone-1", "user@example.com", "secret"); err == nil {
		t.Fatalf("expected error for unknown device")
	}

	f.repo.devices["zone-1"] = model.Device{ID: "zone-1", Name: "Living"}
	f.repo.tokens["zone-1"] = model.TokenData{AccessToken: "old", RefreshToken: "old"}
	if err := f.service.Repair(ctx, "zone-1", "user@example.com", "secret"); err != nil {
		t.Fatalf("Repair() error: %v", err)
	}
	if f.repo.tokens["zone-1"].AccessToken != "access-1" {
		t.Fatalf("tokens not replaced: %+v", f.repo.tokens["zone-1"])
	}
	if diff := cmp.Diff([]string{"zone-1"}, f.activator.added); diff != "" {
		t.Fatalf("restarts mismatch (-want +got):\n%s", diff)
	}
}
