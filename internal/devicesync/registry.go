package devicesync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/micro-ha/remeha-home/addon/internal/model"
)

// Registry owns the live instance of every paired device, keyed by device id.
type Registry struct {
	deps   Deps
	logger *slog.Logger

	mu        sync.RWMutex
	opts      Options
	instances map[string]*Instance
}

func NewRegistry(deps Deps, opts Options) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		deps:      deps,
		logger:    deps.Logger.With("component", "registry"),
		opts:      opts.withDefaults(),
		instances: map[string]*Instance{},
	}
}

// Add creates and activates an instance for id. An existing instance for the
// same id is torn down and replaced.
func (r *Registry) Add(ctx context.Context, id string) (*Instance, error) {
	r.mu.Lock()
	prev := r.instances[id]
	inst := NewInstance(id, r.deps, r.opts)
	r.instances[id] = inst
	r.mu.Unlock()

	if prev != nil {
		prev.Teardown()
	}
	if err := inst.Activate(ctx); err != nil {
		r.mu.Lock()
		if r.instances[id] == inst {
			delete(r.instances, id)
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("activate %s: %w", id, err)
	}
	return inst, nil
}

func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Remove tears down and forgets the instance for id. It returns once the
// instance's in-flight ticks and commands have finished, so nothing they
// persist can land after the caller deletes the device.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	delete(r.instances, id)
	r.mu.Unlock()
	if ok {
		inst.Teardown()
		inst.Wait()
	}
	return ok
}

// List returns the registered device ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActivateAll adds an instance for each id concurrently.
func (r *Registry) ActivateAll(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := r.Add(gctx, id)
			return err
		})
	}
	return g.Wait()
}

// TeardownAll stops every instance and waits for in-flight ticks.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.instances = map[string]*Instance{}
	r.mu.Unlock()

	var g errgroup.Group
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			inst.Teardown()
			inst.Wait()
			return nil
		})
	}
	_ = g.Wait()
	r.logger.Info("all device instances torn down", "count", len(instances))
}

// TriggerAll schedules an immediate tick on every instance.
func (r *Registry) TriggerAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		inst.Trigger()
	}
}

// Reconfigure applies a new poll interval to running and future instances.
func (r *Registry) Reconfigure(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.PollInterval == interval {
		return
	}
	r.opts.PollInterval = interval
	for _, inst := range r.instances {
		inst.SetPollInterval(interval)
	}
	r.logger.Info("registry reconfigured", "poll_interval", interval.String())
}

// PollInterval returns the interval used for new instances.
func (r *Registry) PollInterval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts.PollInterval
}

func (r *Registry) instance(id string) (*Instance, error) {
	inst, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInactive, id)
	}
	return inst, nil
}

// Status returns the availability of device id, or false when it has no instance.
func (r *Registry) Status(id string) (model.Status, string, bool) {
	inst, ok := r.Get(id)
	if !ok {
		return "", "", false
	}
	status, reason := inst.Status()
	return status, reason, true
}

func (r *Registry) SetTargetTemperature(ctx context.Context, id string, value float64) error {
	inst, err := r.instance(id)
	if err != nil {
		return err
	}
	return inst.SetTargetTemperature(ctx, value)
}

func (r *Registry) SetMode(ctx context.Context, id string, mode model.Mode) error {
	inst, err := r.instance(id)
	if err != nil {
		return err
	}
	return inst.SetMode(ctx, mode)
}

func (r *Registry) SetFireplaceMode(ctx context.Context, id string, active bool) error {
	inst, err := r.instance(id)
	if err != nil {
		return err
	}
	return inst.SetFireplaceMode(ctx, active)
}
