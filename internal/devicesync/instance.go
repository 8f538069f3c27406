package devicesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

type lifecycle int

const (
	stateCreated lifecycle = iota
	stateActive
	stateTornDown
)

// Instance syncs one climate zone. Ticks and commands may overlap; each one
// runs to completion, and nothing it produces reaches the sink once the
// instance has been torn down.
type Instance struct {
	id     string
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	state      lifecycle
	client     APIClient
	caps       *model.DeviceCapabilities
	commands   map[model.Command]bool
	status     model.Status
	reason     string
	cancel     context.CancelFunc
	done       chan struct{}

	triggerCh  chan struct{}
	intervalCh chan time.Duration
	inflight   sync.WaitGroup
}

// NewInstance creates an inactive instance for device id.
func NewInstance(id string, deps Deps, opts Options) *Instance {
	deps = deps.withDefaults()
	return &Instance{
		id:         id,
		deps:       deps,
		opts:       opts.withDefaults(),
		logger:     deps.Logger.With("component", "devicesync", "device_id", id),
		status:     model.StatusUnknown,
		triggerCh:  make(chan struct{}, 1),
		intervalCh: make(chan time.Duration, 1),
	}
}

func (i *Instance) ID() string {
	return i.id
}

// Status returns the last published availability and its reason.
func (i *Instance) Status() (model.Status, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status, i.reason
}

// Active reports whether the instance is between Activate and Teardown.
func (i *Instance) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state == stateActive
}

// Handles reports whether cmd has a registered handler.
func (i *Instance) Handles(cmd model.Command) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state == stateActive && i.commands[cmd]
}

// Activate creates the API client and starts the tick loop: a recurring tick
// every PollInterval plus a one-shot tick after InitialDelay.
func (i *Instance) Activate(ctx context.Context) error {
	i.mu.Lock()
	switch i.state {
	case stateActive:
		i.mu.Unlock()
		return nil
	case stateTornDown:
		i.mu.Unlock()
		return ErrTornDown
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	i.state = stateActive
	i.client = i.deps.NewClient()
	i.caps = nil
	i.commands = commandSet(model.Commands(model.DeviceCapabilities{}))
	i.cancel = cancel
	i.done = make(chan struct{})
	i.status = model.StatusUnknown
	i.reason = ""
	i.mu.Unlock()

	if err := i.deps.Sink.SetStatus(ctx, i.id, model.StatusUnknown, ""); err != nil {
		i.logger.Warn("reset status failed", "err", err)
	}
	go i.run(loopCtx, i.opts.PollInterval, i.opts.InitialDelay)
	i.logger.Info("device sync activated", "poll_interval", i.opts.PollInterval.String())
	return nil
}

// Teardown stops the tick loop and drops the API client. It is idempotent and
// safe to call on an instance that was never activated. In-flight ticks are
// not interrupted; their results are discarded.
func (i *Instance) Teardown() {
	i.mu.Lock()
	prev := i.state
	i.state = stateTornDown
	i.client = nil
	i.commands = nil
	cancel, done := i.cancel, i.done
	i.cancel = nil
	i.mu.Unlock()

	if prev != stateActive {
		return
	}
	cancel()
	<-done
	i.logger.Info("device sync torn down")
}

// Wait blocks until every in-flight tick and command has returned. Call it
// after Teardown.
func (i *Instance) Wait() {
	i.inflight.Wait()
}

// Trigger schedules an extra tick as soon as possible.
func (i *Instance) Trigger() {
	select {
	case i.triggerCh <- struct{}{}:
	default:
	}
}

// SetPollInterval changes the recurring tick interval of a running loop.
func (i *Instance) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case i.intervalCh <- d:
			return
		default:
			select {
			case <-i.intervalCh:
			default:
			}
		}
	}
}

func (i *Instance) run(ctx context.Context, interval, initialDelay time.Duration) {
	defer close(i.done)

	initial := time.NewTimer(initialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
			i.spawnTick()
		case <-ticker.C:
			i.spawnTick()
		case <-i.triggerCh:
			i.spawnTick()
		case d := <-i.intervalCh:
			ticker.Reset(d)
			i.logger.Info("poll interval changed", "poll_interval", d.String())
		}
	}
}

func (i *Instance) spawnTick() {
	i.inflight.Add(1)
	go func() {
		defer i.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), i.opts.TickTimeout)
		defer cancel()
		i.Tick(ctx)
	}()
}

// Tick runs one sync pass: token freshness, capability reconciliation, attribute
// fetch, then the optional debug capture. Slots and command handlers are only
// rewritten when the capabilities differ from the last reconciled set.
func (i *Instance) Tick(ctx context.Context) {
	client, ok := i.freshClient(ctx)
	if !ok {
		return
	}

	i.reconcile(ctx, client)
	i.syncAttributes(ctx, client)
	i.syncDebug(ctx, client)
}

// freshClient loads the stored tokens, refreshes them when stale and hands the
// current access token to the client.
func (i *Instance) freshClient(ctx context.Context) (APIClient, bool) {
	i.mu.Lock()
	client := i.client
	i.mu.Unlock()
	if client == nil {
		return nil, false
	}

	tokens, err := i.deps.Tokens.LoadTokens(ctx, i.id)
	if err != nil {
		i.logger.Warn("load tokens failed", "err", err)
		i.setStatus(ctx, model.StatusUnavailable, ReasonTokenLoad)
		return nil, false
	}

	if i.deps.Freshness.NeedsRefresh(tokens, i.deps.Now()) {
		fresh, err := i.deps.Auth.Refresh(ctx, tokens.RefreshToken)
		if err != nil {
			i.logger.Warn("token refresh failed", "err", err)
			i.setStatus(ctx, model.StatusUnavailable, ReasonTokenRefresh)
			return nil, false
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = tokens.RefreshToken
		}
		// Saved even after teardown: the provider may have rotated the
		// refresh token and the old one is no longer valid.
		if err := i.deps.Tokens.SaveTokens(ctx, i.id, fresh); err != nil {
			i.logger.Error("persist refreshed tokens failed", "err", err)
		}
		i.logger.Debug("access token refreshed")
		tokens = fresh
	}

	client.SetAccessToken(tokens.AccessToken)
	return client, true
}

func (i *Instance) reconcile(ctx context.Context, client APIClient) {
	caps, err := client.Capabilities(ctx, i.id)
	if err != nil {
		i.logger.Warn("capability fetch failed", "err", err)
		return
	}
	if caps == nil {
		i.logger.Warn("capability fetch returned no data")
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateActive {
		return
	}
	if i.caps != nil && *i.caps == *caps {
		return
	}
	if err := i.deps.Sink.SetSlots(ctx, i.id, model.Slots(*caps)); err != nil {
		i.logger.Warn("set capability slots failed", "err", err)
		return
	}
	i.commands = commandSet(model.Commands(*caps))
	i.caps = caps
	i.logger.Info("capabilities reconciled",
		"fireplace_mode", caps.FireplaceMode,
		"outdoor_temperature", caps.OutdoorTemperature,
		"hot_water_zone", caps.HotWaterZone,
		"multi_schedule", caps.MultiSchedule,
	)
}

func (i *Instance) syncAttributes(ctx context.Context, client APIClient) {
	state, err := client.Device(ctx, i.id)
	if err != nil {
		i.logger.Warn("device fetch failed", "err", err)
		i.setStatus(ctx, model.StatusUnavailable, ReasonFetchFailed)
		return
	}
	if state == nil {
		i.setStatus(ctx, model.StatusUnavailable, ReasonDeviceNotFound)
		return
	}

	values := model.Values(*state)
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateActive {
		return
	}
	if err := i.deps.Sink.SetValues(ctx, i.id, values); err != nil {
		i.logger.Error("apply values failed", "err", err)
		return
	}
	i.publishStatusLocked(ctx, model.StatusAvailable, "")
}

func (i *Instance) syncDebug(ctx context.Context, client APIClient) {
	if i.deps.Debug == nil {
		return
	}
	enabled, err := i.deps.Debug.DebugEnabled(ctx, i.id)
	if err != nil || !enabled {
		return
	}
	payload, err := client.Debug(ctx)
	if err != nil || payload == nil {
		i.logger.Debug("debug payload fetch failed", "err", err)
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateActive {
		return
	}
	if err := i.deps.Debug.SaveDebugPayload(ctx, i.id, payload); err != nil {
		i.logger.Debug("debug payload save failed", "err", err)
	}
}

// SetTargetTemperature changes the room setpoint.
func (i *Instance) SetTargetTemperature(ctx context.Context, value float64) error {
	return i.command(ctx, model.CommandTargetTemperature, ReasonSetTarget, func(client APIClient) error {
		return client.SetTargetTemperature(ctx, i.id, value)
	})
}

// SetMode switches between manual, auto and off.
func (i *Instance) SetMode(ctx context.Context, mode model.Mode) error {
	if _, err := model.ParseMode(string(mode)); err != nil {
		return err
	}
	return i.command(ctx, model.CommandMode, ReasonSetMode, func(client APIClient) error {
		return client.SetMode(ctx, i.id, mode)
	})
}

// SetFireplaceMode toggles fireplace mode.
func (i *Instance) SetFireplaceMode(ctx context.Context, active bool) error {
	return i.command(ctx, model.CommandFireplaceMode, ReasonSetFireplace, func(client APIClient) error {
		return client.SetFireplaceMode(ctx, i.id, active)
	})
}

// command runs fn with a fresh client. Failures mark the device unavailable
// and are not returned to the caller.
func (i *Instance) command(ctx context.Context, cmd model.Command, reason string, fn func(APIClient) error) error {
	i.mu.Lock()
	active := i.state == stateActive
	handled := i.commands[cmd]
	if active && handled {
		i.inflight.Add(1)
	}
	i.mu.Unlock()
	if !active {
		return ErrInactive
	}
	if !handled {
		return ErrCommandUnsupported
	}
	defer i.inflight.Done()

	client, ok := i.freshClient(ctx)
	if !ok {
		return nil
	}
	if err := fn(client); err != nil {
		i.logger.Warn("command failed", "command", string(cmd), "err", err)
		i.setStatus(ctx, model.StatusUnavailable, reason)
		return nil
	}
	i.logger.Info("command sent", "command", string(cmd))
	return nil
}

func (i *Instance) setStatus(ctx context.Context, status model.Status, reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateActive {
		return
	}
	i.publishStatusLocked(ctx, status, reason)
}

func (i *Instance) publishStatusLocked(ctx context.Context, status model.Status, reason string) {
	if err := i.deps.Sink.SetStatus(ctx, i.id, status, reason); err != nil {
		i.logger.Error("publish status failed", "err", err)
		return
	}
	if status != i.status || reason != i.reason {
		i.logger.Info("device status changed", "status", string(status), "reason", reason)
	}
	i.status = status
	i.reason = reason
}

func commandSet(commands []model.Command) map[model.Command]bool {
	set := make(map[model.Command]bool, len(commands))
	for _, c := range commands {
		set[c] = true
	}
	return set
}
