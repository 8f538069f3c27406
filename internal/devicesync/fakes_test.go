package devicesync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/auth"
	"github.com/micro-ha/remeha-home/addon/internal/logging"
	"github.com/micro-ha/remeha-home/addon/internal/model"
)

var testNow = time.Unix(1_700_000_000, 0)

func jwtWithExp(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body, _ := json.Marshal(map[string]any{"exp": exp.Unix()})
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".c2ln"
}

type statusWrite struct {
	Status model.Status
	Reason string
}

type memoryStore struct {
	mu           sync.Mutex
	tokens       map[string]model.TokenData
	tokenSaves   int
	loadErr      error
	statuses     map[string][]statusWrite
	slots        map[string][]string
	values       map[string]map[string]any
	debugEnabled bool
	debugPayload map[string]json.RawMessage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tokens:       map[string]model.TokenData{},
		statuses:     map[string][]statusWrite{},
		slots:        map[string][]string{},
		values:       map[string]map[string]any{},
		debugPayload: map[string]json.RawMessage{},
	}
}

func (m *memoryStore) LoadTokens(_ context.Context, id string) (model.TokenData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.TokenData{}, m.loadErr
	}
	tokens, ok := m.tokens[id]
	if !ok {
		return model.TokenData{}, errors.New("not found")
	}
	return tokens, nil
}

func (m *memoryStore) SaveTokens(_ context.Context, id string, tokens model.TokenData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = tokens
	m.tokenSaves++
	return nil
}

func (m *memoryStore) SetStatus(_ context.Context, id string, status model.Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = append(m.statuses[id], statusWrite{Status: status, Reason: reason})
	return nil
}

func (m *memoryStore) SetSlots(_ context.Context, id string, slots []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[id] = append([]string(nil), slots...)
	keep := make(map[string]bool, len(slots))
	for _, slot := range slots {
		keep[slot] = true
	}
	for slot := range m.values[id] {
		if !keep[slot] {
			delete(m.values[id], slot)
		}
	}
	return nil
}

func (m *memoryStore) SetValues(_ context.Context, id string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[id] == nil {
		m.values[id] = map[string]any{}
	}
	for k, v := range values {
		m.values[id][k] = v
	}
	return nil
}

func (m *memoryStore) DebugEnabled(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugEnabled, nil
}

func (m *memoryStore) SaveDebugPayload(_ context.Context, id string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugPayload[id] = payload
	return nil
}

func (m *memoryStore) lastStatus(id string) statusWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	writes := m.statuses[id]
	if len(writes) == 0 {
		return statusWrite{}
	}
	return writes[len(writes)-1]
}

func (m *memoryStore) valuesOf(id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]any{}
	for k, v := range m.values[id] {
		out[k] = v
	}
	return out
}

func (m *memoryStore) slotsOf(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.slots[id]...)
}

func (m *memoryStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenSaves
}

func (m *memoryStore) storedTokens(id string) model.TokenData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id]
}

type fakeRefresher struct {
	mu     sync.Mutex
	calls  []string
	tokens model.TokenData
	err    error

	// entered and release let a test hold a tick inside Refresh.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (model.TokenData, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refreshToken)
	if f.err != nil {
		return model.TokenData{}, f.err
	}
	return f.tokens, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClient struct {
	mu         sync.Mutex
	token      string
	state      *model.DeviceState
	caps       *model.DeviceCapabilities
	deviceErr  error
	capsErr    error
	debug      json.RawMessage
	debugErr   error
	commandErr error
	commands   []string

	// deviceEntered and deviceRelease let a test hold a tick inside Device.
	deviceEntered chan struct{}
	deviceRelease chan struct{}
}

func (f *fakeClient) SetAccessToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeClient) accessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeClient) Device(context.Context, string) (*model.DeviceState, error) {
	f.mu.Lock()
	entered, release := f.deviceEntered, f.deviceRelease
	f.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deviceErr != nil {
		return nil, f.deviceErr
	}
	if f.state == nil {
		return nil, nil
	}
	state := *f.state
	return &state, nil
}

func (f *fakeClient) Capabilities(context.Context, string) (*model.DeviceCapabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capsErr != nil {
		return nil, f.capsErr
	}
	if f.caps == nil {
		return nil, nil
	}
	caps := *f.caps
	return &caps, nil
}

func (f *fakeClient) Debug(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.debug, f.debugErr
}

func (f *fakeClient) SetTargetTemperature(_ context.Context, _ string, value float64) error {
	return f.record("target_temperature")
}

func (f *fakeClient) SetMode(_ context.Context, _ string, mode model.Mode) error {
	return f.record("mode:" + string(mode))
}

func (f *fakeClient) SetFireplaceMode(context.Context, string, bool) error {
	return f.record("fireplace")
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, call)
	return f.commandErr
}

func (f *fakeClient) update(fn func(*fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type harness struct {
	store  *memoryStore
	auth   *fakeRefresher
	client *fakeClient
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	outdoor := 4.5
	store := newMemoryStore()
	store.tokens["zone-1"] = model.TokenData{
		AccessToken:  jwtWithExp(testNow.Add(time.Hour)),
		RefreshToken: "refresh-1",
	}
	client := &fakeClient{
		state: &model.DeviceState{
			ID:                 "zone-1",
			Name:               "Living",
			IsOnline:           true,
			Mode:               model.ModeAuto,
			Temperature:        20.5,
			TargetTemperature:  21,
			WaterPressure:      1.5,
			WaterPressureOK:    true,
			OutdoorTemperature: &outdoor,
		},
		caps: &model.DeviceCapabilities{OutdoorTemperature: true},
	}
	refresher := &fakeRefresher{tokens: model.TokenData{
		AccessToken:  jwtWithExp(testNow.Add(2 * time.Hour)),
		RefreshToken: "refresh-2",
	}}
	h := &harness{store: store, auth: refresher, client: client}
	h.deps = Deps{
		Tokens:    store,
		Sink:      store,
		Debug:     store,
		Auth:      refresher,
		NewClient: func() APIClient { return client },
		Freshness: auth.FreshnessClaim,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return testNow },
	}
	return h
}

// quietOptions keep the loop from firing on its own during a test.
var quietOptions = Options{PollInterval: time.Hour, InitialDelay: time.Hour, TickTimeout: time.Second}

func (h *harness) activeInstance(t *testing.T) *Instance {
	t.Helper()
	inst := NewInstance("zone-1", h.deps, quietOptions)
	if err := inst.Activate(context.Background()); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	t.Cleanup(inst.Teardown)
	return inst
}
