// Package opencommotion is the high-level entry point for the scene
// synchronization engine. It wires the revision store, the stroke compiler,
// the turn coordinator, and the realtime hub into one embeddable Engine, so a
// host application (HTTP server, MCP server, or test harness) only deals with
// turns and scenes.
package opencommotion

import (
	"context"
	"log/slog"
	"time"

	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/internal/metrics"
	"github.com/masltov-creations/opencommotion/pkg/fanout"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
	"github.com/masltov-creations/opencommotion/pkg/store"
	"github.com/masltov-creations/opencommotion/pkg/turns"
)

// Version is the release version, used in banners and server identities.
var Version = "0.1.0"

// Engine bundles the engine's moving parts behind one facade.
type Engine struct {
	store       *store.Store
	coordinator *turns.Coordinator
	hub         *fanout.Hub
	metrics     *metrics.Metrics

	archive     ports.SnapshotArchive
	cache       ports.ResultCache
	policy      *scene.Policy
	bufferSize  int
	lockTimeout time.Duration
	noAutosave  bool
	logger      *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithArchive attaches a snapshot archive (enables snapshot/restore and
// autosave).
func WithArchive(archive ports.SnapshotArchive) Option {
	return func(e *Engine) { e.archive = archive }
}

// WithResultCache enables idempotent turn resubmission.
func WithResultCache(cache ports.ResultCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithPolicy overrides the default mutation caps.
func WithPolicy(p scene.Policy) Option {
	return func(e *Engine) { e.policy = &p }
}

// WithEventBuffer sets the per-subscriber realtime buffer.
func WithEventBuffer(n int) Option {
	return func(e *Engine) { e.bufferSize = n }
}

// WithLockTimeout bounds how long a turn waits for a contended scene.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithoutAutosave keeps the archive for named snapshots only, skipping the
// per-commit autosave write.
func WithoutAutosave() Option {
	return func(e *Engine) { e.noAutosave = true }
}

// WithLogger sets a structured logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches prometheus collectors to all components.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New assembles an Engine. Without options it runs fully in-process: no
// snapshot persistence, no idempotency cache, default caps.
func New(opts ...Option) *Engine {
	e := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	storeOpts := []store.Option{store.WithLogger(e.logger)}
	if e.archive != nil {
		storeOpts = append(storeOpts, store.WithArchive(e.archive))
		if e.noAutosave {
			storeOpts = append(storeOpts, store.WithoutAutosave())
		}
	}
	if e.policy != nil {
		storeOpts = append(storeOpts, store.WithPolicy(*e.policy))
	}
	if e.lockTimeout > 0 {
		storeOpts = append(storeOpts, store.WithLockTimeout(e.lockTimeout))
	}
	e.store = store.New(storeOpts...)

	hubOpts := []fanout.Option{fanout.WithLogger(e.logger)}
	if e.bufferSize > 0 {
		hubOpts = append(hubOpts, fanout.WithBufferSize(e.bufferSize))
	}
	if e.metrics != nil {
		hubOpts = append(hubOpts, fanout.WithMetrics(e.metrics))
	}
	e.hub = fanout.NewHub(hubOpts...)

	coordOpts := []turns.Option{
		turns.WithLogger(e.logger),
		turns.WithPublisher(e.hub),
	}
	if e.cache != nil {
		coordOpts = append(coordOpts, turns.WithCache(e.cache))
	}
	if e.metrics != nil {
		coordOpts = append(coordOpts, turns.WithMetrics(e.metrics))
	}
	e.coordinator = turns.NewCoordinator(e.store, coordOpts...)

	return e
}

// Submit runs one turn through the pipeline. See turns.Coordinator.Submit.
func (e *Engine) Submit(ctx context.Context, sub turns.Submission) (scene.TurnResult, bool, error) {
	return e.coordinator.Submit(ctx, sub)
}

// Scene returns a copy of a scene's current state.
func (e *Engine) Scene(ctx context.Context, sceneID string) (*scene.Scene, error) {
	return e.coordinator.Scene(ctx, sceneID)
}

// Subscribe attaches a realtime subscriber to a session.
func (e *Engine) Subscribe(sessionID string) *fanout.Subscriber {
	return e.hub.Subscribe(sessionID)
}

// Unsubscribe detaches a realtime subscriber.
func (e *Engine) Unsubscribe(sessionID string, sub *fanout.Subscriber) {
	e.hub.Unsubscribe(sessionID, sub)
}

// Coordinator exposes the turn coordinator for adapter wiring.
func (e *Engine) Coordinator() *turns.Coordinator {
	return e.coordinator
}

// Hub exposes the realtime hub for adapter wiring.
func (e *Engine) Hub() *fanout.Hub {
	return e.hub
}

// Store exposes the revision store for snapshot operations.
func (e *Engine) Store() *store.Store {
	return e.store
}
