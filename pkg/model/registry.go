package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/clenoble/sovereign/pkg/logger"
	"github.com/clenoble/sovereign/pkg/observability"
)

// defaultRoleSizes is the configurable per-model-id size table the registry
// consults for status().vram_bytes, since the core cannot introspect a
// real native allocator (SPEC_FULL.md "Supplemented features" #3).
// Unregistered ids report zero.
var defaultRoleSizes = map[string]uint64{}

// SetModelSize registers an approximate resident size in bytes for a
// model id, consulted by Status. Tests call this to make idle-unload
// assertions meaningful without a real GPU.
func SetModelSize(modelID string, bytes uint64) {
	defaultRoleSizes[modelID] = bytes
}

// Handle is what Load returns: a live reference to a loaded backend plus
// its bookkeeping.
type Handle struct {
	Role      Role
	ModelID   string
	Family    Family
	LoadedAt  time.Time
	backend   Backend
	lastUsed  time.Time
	vramBytes uint64
}

// Status is the per-role snapshot returned by Registry.Status.
type Status struct {
	ModelID   string
	LoadedAt  time.Time
	LastUsed  time.Time
	VRAMBytes uint64
	Loaded    bool
}

// globalInit is the one-time, process-wide native-library initialisation
// slot named in SPEC_FULL.md's "global mutable state" design note: the
// model backend library typically requires exactly one initialisation
// per process, and repeated calls must be a no-op.
var (
	globalInitOnce sync.Once
	globalInitErr  error
)

// initGlobal performs the one-time process-wide backend initialisation.
// Concrete backends here are plain HTTP/SDK clients with no native
// library state, so this is a placeholder hook kept for parity with the
// design note and for any future backend that does need it.
func initGlobal() error {
	globalInitOnce.Do(func() {
		logger.Get().Debug("model: global backend context initialised")
	})
	return globalInitErr
}

// Factory constructs a Backend for a given model id. The registry is
// backend-agnostic: callers supply factories per role at construction,
// matching hector's LLMRegistry.CreateLLMFromConfig switch over
// provider type.
type Factory func(modelID string) (Backend, error)

// Registry owns zero, one, or two loaded LLMs and enforces the idle
// unload / hot-swap policy of spec.md §4.2.
type Registry struct {
	mu            sync.Mutex
	handles       map[Role]*Handle
	factories     map[Role]Factory
	idleUnloadFor map[Role]time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	group    *errgroup.Group
}

// NewRegistry creates an empty registry. idleUnload configures how long
// a role may sit unused before the housekeeping loop releases it; a
// zero duration for a role disables idle-unload for it (the registry
// never auto-unloads the router role by default, matching spec.md's
// silence on router idle behaviour — only reasoning is named).
func NewRegistry(idleUnload map[Role]time.Duration) *Registry {
	if err := initGlobal(); err != nil {
		logger.Get().Error("model: global init failed", "error", err)
	}
	idle := map[Role]time.Duration{}
	for k, v := range idleUnload {
		idle[k] = v
	}
	r := &Registry{
		handles:       make(map[Role]*Handle),
		factories:     make(map[Role]Factory),
		idleUnloadFor: idle,
		stopCh:        make(chan struct{}),
	}
	r.registerVRAMGauge()
	return r
}

// registerVRAMGauge exposes status().vram_bytes (SPEC_FULL.md
// "Supplemented features" #3) as an OpenTelemetry observable gauge, one
// series per loaded role, sampled on each collection pass rather than
// pushed on every Load/Unload.
func (r *Registry) registerVRAMGauge() {
	meter := observability.Meter("sovereign/model")
	gauge, err := meter.Int64ObservableGauge("model.vram_bytes",
		metric.WithDescription("Approximate resident size of the model loaded in a role, in bytes."),
		metric.WithUnit("By"))
	if err != nil {
		logger.Get().Warn("model: failed to register vram_bytes gauge", "error", err)
		return
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for role, status := range r.StatusAll() {
			o.ObserveInt64(gauge, int64(status.VRAMBytes), metric.WithAttributes(attribute.String("role", string(role))))
		}
		return nil
	}, gauge)
	if err != nil {
		logger.Get().Warn("model: failed to register vram_bytes callback", "error", err)
	}
}

// RegisterFactory associates a role with a backend constructor, used by
// Load and by the idle-unload reload path.
func (r *Registry) RegisterFactory(role Role, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[role] = f
}

// Load loads modelID into role. Hot-swap: the prior occupant of role, if
// any, is released before the replacement is exposed, so there is never
// a window with two models in the same role slot.
func (r *Registry) Load(ctx context.Context, role Role, modelID string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[role]
	if !ok {
		return nil, &LoadError{ModelID: modelID, Cause: "no factory registered for role", Err: fmt.Errorf("model: role %s has no factory", role)}
	}

	if prior, exists := r.handles[role]; exists {
		if prior.backend != nil {
			_ = prior.backend.Close()
		}
		delete(r.handles, role)
	}

	backend, err := factory(modelID)
	if err != nil {
		return nil, &LoadError{ModelID: modelID, Cause: "factory failed", Err: err}
	}

	now := time.Now()
	handle := &Handle{
		Role:      role,
		ModelID:   modelID,
		Family:    backend.Family(),
		LoadedAt:  now,
		backend:   backend,
		lastUsed:  now,
		vramBytes: defaultRoleSizes[modelID],
	}
	r.handles[role] = handle
	logger.Get().Info("model: loaded", "role", role, "model_id", modelID)
	return handle, nil
}

// Unload releases whatever backend occupies role, if any.
func (r *Registry) Unload(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[role]
	if !ok {
		return
	}
	if handle.backend != nil {
		_ = handle.backend.Close()
	}
	delete(r.handles, role)
	logger.Get().Info("model: unloaded", "role", role, "model_id", handle.ModelID)
}

// ensureLoaded lazily loads role with modelID if it is not already
// loaded, the reasoning-tier "loaded lazily on first demand" policy of
// spec.md §4.2.
func (r *Registry) ensureLoaded(ctx context.Context, role Role, modelID string) (*Handle, error) {
	r.mu.Lock()
	handle, ok := r.handles[role]
	r.mu.Unlock()
	if ok && handle.ModelID == modelID {
		return handle, nil
	}
	return r.Load(ctx, role, modelID)
}

// Generate runs a blocking generate call against role, lazily loading
// modelID if the role is empty or holds a different model. The returned
// channel carries streamed chunks ending in a Done chunk; callers that
// only want the final text can drain to completion.
func (r *Registry) Generate(ctx context.Context, role Role, modelID, prompt string, params SamplingParams) (<-chan StreamChunk, error) {
	handle, err := r.ensureLoaded(ctx, role, modelID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	handle.lastUsed = time.Now()
	r.mu.Unlock()
	return handle.backend.Generate(ctx, prompt, params)
}

// GenerateText is a convenience wrapper that drains Generate's stream
// and returns the final text, for callers (the classifier, the chat
// loop) that don't render partial tokens themselves.
func (r *Registry) GenerateText(ctx context.Context, role Role, modelID, prompt string, params SamplingParams) (string, error) {
	stream, err := r.Generate(ctx, role, modelID, prompt, params)
	if err != nil {
		return "", err
	}
	var text string
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		text += chunk.Delta
		if chunk.Done {
			break
		}
	}
	return text, nil
}

// Embed runs a blocking embedding call against the embedding role.
func (r *Registry) Embed(ctx context.Context, modelID, text string) ([]float32, error) {
	handle, err := r.ensureLoaded(ctx, RoleEmbedding, modelID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	handle.lastUsed = time.Now()
	r.mu.Unlock()
	return handle.backend.Embed(ctx, text)
}

// StatusAll returns a role -> Status snapshot.
func (r *Registry) StatusAll() map[Role]Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Role]Status, len(r.handles))
	for role, h := range r.handles {
		out[role] = Status{ModelID: h.ModelID, LoadedAt: h.LoadedAt, LastUsed: h.lastUsed, VRAMBytes: h.vramBytes, Loaded: true}
	}
	return out
}

// StartHousekeeping launches the background idle-unload loop. It runs
// under an errgroup so a panic in the loop is recovered, logged, and the
// worker restarts per spec.md §7's propagation policy for background
// workers.
func (r *Registry) StartHousekeeping(ctx context.Context, tick time.Duration) {
	group, gctx := errgroup.WithContext(ctx)
	r.group = group
	group.Go(func() error {
		return r.runHousekeeping(gctx, tick)
	})
}

func (r *Registry) runHousekeeping(ctx context.Context, tick time.Duration) error {
	defer func() {
		if p := recover(); p != nil {
			logger.Get().Error("model: housekeeping worker panicked, restarting", "panic", p)
			go func() { _ = r.runHousekeeping(ctx, tick) }()
		}
	}()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for role, handle := range r.handles {
		idleAfter, configured := r.idleUnloadFor[role]
		if !configured || idleAfter <= 0 {
			continue
		}
		if now.Sub(handle.lastUsed) >= idleAfter {
			if handle.backend != nil {
				_ = handle.backend.Close()
			}
			delete(r.handles, role)
			logger.Get().Info("model: idle-unloaded", "role", role, "model_id", handle.ModelID)
		}
	}
}

// Stop halts the housekeeping loop and waits for it to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.group != nil {
		_ = r.group.Wait()
	}
}
