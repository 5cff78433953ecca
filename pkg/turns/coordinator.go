// Package turns coordinates turn submissions: idempotency lookup, stroke
// compilation, commit, result caching, and realtime publication.
package turns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/internal/metrics"
	"github.com/masltov-creations/opencommotion/pkg/brush"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
	"github.com/masltov-creations/opencommotion/pkg/store"
)

// Coordinator owns the submission pipeline. One instance serves all sessions.
type Coordinator struct {
	store     *store.Store
	compiler  *brush.Compiler
	cache     ports.ResultCache
	publisher ports.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithCache enables idempotent resubmission.
func WithCache(cache ports.ResultCache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithPublisher fans committed results out to realtime subscribers.
func WithPublisher(pub ports.Publisher) Option {
	return func(c *Coordinator) { c.publisher = pub }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics attaches the engine collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator over the given revision store.
func NewCoordinator(st *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		compiler: brush.New(),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submission is one turn request. Rebuild declares that the turn is meant to
// replace most of the scene, waiving the suspicious-rebuild guard.
type Submission struct {
	SessionID    string         `json:"session_id"`
	SceneID      string         `json:"scene_id"`
	TurnID       string         `json:"turn_id"`
	BaseRevision int64          `json:"base_revision"`
	Strokes      []scene.Stroke `json:"strokes"`
	Rebuild      bool           `json:"rebuild,omitempty"`
}

// Submit runs the turn pipeline. Resubmitting a (session_id, turn_id) that
// already committed returns the cached result without touching the scene;
// the returned bool reports whether the result was replayed from cache.
//
// Error taxonomy: *scene.ConflictError on a stale base revision,
// *scene.CompileError on bad strokes, *scene.ApplyError on a batch the policy
// rejects, scene.ErrLockTimeout when the scene lock is contended.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (scene.TurnResult, bool, error) {
	start := c.now()

	if sub.SceneID == "" {
		return scene.TurnResult{}, false, fmt.Errorf("scene_id is required")
	}
	if sub.SessionID == "" {
		return scene.TurnResult{}, false, fmt.Errorf("session_id is required")
	}
	if sub.TurnID == "" {
		sub.TurnID = uuid.NewString()
	}

	if c.cache != nil {
		cached, hit, err := c.cache.Get(ctx, sub.SessionID, sub.TurnID)
		if err != nil {
			c.logger.Warn("result cache lookup failed",
				"session_id", sub.SessionID,
				"turn_id", sub.TurnID,
				"err", err,
			)
		} else if hit {
			c.count(metrics.OutcomeCacheHit)
			c.logger.Debug("turn replayed from cache",
				"session_id", sub.SessionID,
				"turn_id", sub.TurnID,
				"revision", cached.Revision,
			)
			return cached, true, nil
		}
	}

	current, err := c.store.Get(ctx, sub.SceneID)
	if err != nil {
		return scene.TurnResult{}, false, err
	}

	ops, warnings, err := c.compiler.Compile(sub.Strokes, brush.CapabilitiesFor(current))
	if err != nil {
		c.count(metrics.OutcomeCompileError)
		return scene.TurnResult{}, false, err
	}

	var commitOpts []store.CommitOption
	if sub.Rebuild {
		commitOpts = append(commitOpts, store.WithExplicitRebuild())
	}
	committed, err := c.store.Commit(ctx, sub.SceneID, sub.BaseRevision, ops, commitOpts...)
	if err != nil {
		c.count(outcomeForError(err))
		return scene.TurnResult{}, false, err
	}

	result := scene.TurnResult{
		SessionID: sub.SessionID,
		SceneID:   sub.SceneID,
		TurnID:    sub.TurnID,
		Revision:  committed.Revision,
		PatchOps:  committed.Applied,
		Warnings:  mergeWarnings(warnings, committed.Warnings),
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, result); err != nil {
			// A cache write failure costs idempotency on retry, not
			// correctness of the committed turn.
			c.logger.Warn("result cache write failed",
				"session_id", sub.SessionID,
				"turn_id", sub.TurnID,
				"err", err,
			)
		}
	}

	if c.publisher != nil {
		c.publisher.Publish(sub.SessionID, result)
	}

	c.count(metrics.OutcomeCommitted)
	if c.metrics != nil {
		c.metrics.PatchOpsApplied.Add(float64(len(result.PatchOps)))
		c.metrics.TurnWarnings.Add(float64(len(result.Warnings)))
		c.metrics.TurnDuration.Observe(c.now().Sub(start).Seconds())
	}
	c.logger.Info("turn committed",
		"session_id", sub.SessionID,
		"scene_id", sub.SceneID,
		"turn_id", sub.TurnID,
		"revision", result.Revision,
		"ops", len(result.PatchOps),
		"warnings", len(result.Warnings),
	)
	return result, false, nil
}

// Scene returns a copy of the scene's current state, for reads and reconnect
// catch-up.
func (c *Coordinator) Scene(ctx context.Context, sceneID string) (*scene.Scene, error) {
	return c.store.Get(ctx, sceneID)
}

// Store exposes the underlying revision store for snapshot operations.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

func (c *Coordinator) count(outcome string) {
	if c.metrics != nil {
		c.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeForError(err error) string {
	var conflict *scene.ConflictError
	var applyErr *scene.ApplyError
	switch {
	case errors.As(err, &conflict):
		return metrics.OutcomeConflict
	case errors.As(err, &applyErr):
		return metrics.OutcomeApplyError
	case errors.Is(err, scene.ErrLockTimeout):
		return metrics.OutcomeLockTimeout
	default:
		return metrics.OutcomeApplyError
	}
}

func mergeWarnings(compile, commit []string) []string {
	merged := make([]string, 0, len(compile)+len(commit))
	merged = append(merged, compile...)
	merged = append(merged, commit...)
	return merged
}
