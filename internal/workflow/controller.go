// Package workflow implements the step-gated state machine at the center
// of the recovery flow: one generic controller per mounted step, a
// per-step deadline, and the completion view. All three steps share this
// one controller, parameterized by a model.Step entry; the persisted
// Progress record is the single source of truth and everything held here
// is a cache reconciled against fetch and push results.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/notifier"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
)

// Config assembles a controller's collaborators. Identity is threaded in
// explicitly at construction and refreshed only through the session gate;
// there is no ambient current-user state.
type Config struct {
	Step     model.Step
	Identity session.Identity
	Token    string

	Store     store.Store
	Publisher events.Publisher   // required; use events.NoopPublisher when the bus is off
	Notifier  *notifier.Notifier // nil = no push channel, manual advancement only
	Gate      *session.Gate
	Defaults  store.Defaults

	Deadline time.Duration
	Tick     time.Duration // timer granularity override, 0 = 1s

	// OnExpire is invoked after a deadline ejection, for accounting.
	OnExpire func(identityID string, step int)
}

// Controller runs one step of the workflow for one identity. Terminal
// states are Advanced and Blocked; Error is recovered by re-mounting.
type Controller struct {
	cfg  Config
	step model.Step

	mu       sync.Mutex
	state    State
	redirect model.Route
	progress *model.Progress
	fieldErr string
	errMsg   string

	sub   *notifier.Subscription
	timer *Deadline
}

// Mount runs the controller's entry sequence and returns it in its
// post-entry state: gate check, fetch-or-create, precondition redirects,
// fee assignment, change watch, deadline start.
func Mount(ctx context.Context, cfg Config) *Controller {
	c := &Controller{cfg: cfg, step: cfg.Step, state: StateLoading}

	if cfg.Identity.IsZero() {
		c.state = StateBlocked
		c.redirect = model.RouteLogin
		return c
	}

	p, err := c.fetchOrCreate(ctx)
	if err != nil {
		slog.Warn("step mount failed", "step", c.step.Number, "identity", cfg.Identity.ID, "error", err)
		c.state = StateError
		c.errMsg = "progress is temporarily unavailable; try again"
		return c
	}
	c.progress = p

	// A finished workflow routes straight to the completion view from any
	// step, skipping the intermediate pages entirely.
	if p.AllCompleted() {
		c.state = StateBlocked
		c.redirect = model.RouteComplete
		return c
	}
	// Re-render is never allowed once complete: a finished step routes
	// forward, preventing duplicate fee collection.
	if p.StepCompleted(c.step.Number) {
		c.state = StateBlocked
		c.redirect = c.step.Next
		return c
	}
	// No skipping: an incomplete predecessor routes back.
	if first := p.FirstIncompleteStep(); first < c.step.Number {
		c.state = StateBlocked
		c.redirect = model.StepRoute(first)
		return c
	}

	p, err = cfg.Store.EnsureFeeAssigned(ctx, cfg.Identity.ID, c.step.Number, c.step.DefaultFee)
	if err != nil {
		slog.Warn("fee assignment failed", "step", c.step.Number, "identity", cfg.Identity.ID, "error", err)
		c.state = StateError
		c.errMsg = "progress is temporarily unavailable; try again"
		return c
	}
	c.reconcile(p)
	c.state = StateReady

	// Once the watch is live a push can advance the controller at any
	// moment, so the subscription and the timer are installed under the
	// lock. If a push already tore the controller down, the resource is
	// released instead of installed.
	if cfg.Notifier != nil {
		sub, err := cfg.Notifier.Watch(cfg.Identity.ID, c.onPush)
		if err != nil {
			// Degraded but usable: the user can still advance manually.
			slog.Warn("change watch unavailable", "identity", cfg.Identity.ID, "error", err)
		} else {
			c.mu.Lock()
			if c.state.Terminal() {
				c.mu.Unlock()
				sub.Cancel()
			} else {
				c.sub = sub
				c.mu.Unlock()
			}
		}
	}

	timer := StartDeadline(cfg.Deadline, cfg.Tick, c.expire)
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		timer.Stop()
	} else {
		c.timer = timer
		c.mu.Unlock()
	}

	return c
}

// Step returns the step definition this controller serves.
func (c *Controller) Step() model.Step { return c.step }

// Snapshot returns the controller's current render.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ConfirmPayment handles the user's "I paid" assertion. It validates the
// destination wallet, writes completion, and advances. A confirm while
// one is already in flight is a no-op returning the current snapshot.
func (c *Controller) ConfirmPayment(ctx context.Context, wallet string) Snapshot {
	wallet = strings.TrimSpace(wallet)

	c.mu.Lock()
	if c.state != StateReady {
		// Covers the re-entrancy guard (Submitting) and terminal states.
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	if wallet == "" {
		c.fieldErr = "destination wallet address is required"
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.fieldErr = ""
	c.state = StateSubmitting
	c.mu.Unlock()

	completed := true
	patch := model.ProgressPatch{DestinationWallet: &wallet}
	switch c.step.Number {
	case 1:
		patch.Step1Completed = &completed
	case 2:
		patch.Step2Completed = &completed
	case 3:
		patch.Step3Completed = &completed
	}

	updated, err := c.cfg.Store.UpdateProgress(ctx, c.cfg.Identity.ID, patch)
	if err != nil {
		return c.confirmFailed(ctx, err)
	}

	c.publish(ctx, updated, map[string]any{
		"destination_wallet": wallet,
		stepFlagName(c.step.Number): true,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcile(updated)
	if c.state == StateSubmitting {
		// A push may have advanced us already; advancing twice is harmless
		// but tearing down twice is sloppy.
		c.advanceLocked()
	}
	return c.snapshotLocked()
}

// confirmFailed handles a failed completion write. The write may have
// landed server-side despite the client-visible error, so the controller
// re-fetches before deciding: observing the flag true means advance, not
// retry, which is what prevents charging the step twice.
func (c *Controller) confirmFailed(ctx context.Context, writeErr error) Snapshot {
	slog.Warn("completion write failed", "step", c.step.Number, "identity", c.cfg.Identity.ID, "error", writeErr)

	current, fetchErr := c.cfg.Store.GetProgress(ctx, c.cfg.Identity.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if fetchErr == nil {
		c.reconcile(current)
		if c.progress.StepCompleted(c.step.Number) {
			if !c.state.Terminal() {
				c.advanceLocked()
			}
			return c.snapshotLocked()
		}
	}

	if c.state == StateSubmitting {
		c.state = StateError
		c.errMsg = "payment could not be recorded; try again"
	}
	return c.snapshotLocked()
}

// onPush reconciles a server-pushed record state. A push that shows this
// step complete — an operator marking it paid, or our own write echoed
// back — advances the controller without local action.
func (c *Controller) onPush(p *model.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return
	}
	c.reconcile(p)
	if c.progress.StepCompleted(c.step.Number) &&
		(c.state == StateReady || c.state == StateSubmitting) {
		c.advanceLocked()
	}
}

// expire is the deadline's single firing: invalidate the session and
// eject, regardless of unsaved input. No completion flag is touched.
func (c *Controller) expire() {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateBlocked
	c.redirect = model.RouteLogin
	c.fieldErr = ""
	c.mu.Unlock()

	if c.cfg.Gate != nil {
		c.cfg.Gate.SignOut(c.cfg.Token)
	}

	evt := events.SessionExpired{IdentityID: c.cfg.Identity.ID, Step: c.step.Number}
	if err := c.cfg.Publisher.Publish(context.Background(), events.TopicSessionExpired, evt); err != nil {
		slog.Warn("failed to publish session expiry", "identity", c.cfg.Identity.ID, "error", err)
	}
	slog.Info("session deadline expired", "identity", c.cfg.Identity.ID, "step", c.step.Number)

	if c.cfg.OnExpire != nil {
		c.cfg.OnExpire(c.cfg.Identity.ID, c.step.Number)
	}

	go c.Unmount()
}

// Unmount tears the controller down: the change watch and the deadline
// both stop so nothing acts on a stale instance. Idempotent.
func (c *Controller) Unmount() {
	c.mu.Lock()
	sub, timer := c.sub, c.timer
	c.sub, c.timer = nil, nil
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if timer != nil {
		timer.Stop()
	}
}

// fetchOrCreate loads the identity's record, creating it on first access.
func (c *Controller) fetchOrCreate(ctx context.Context) (*model.Progress, error) {
	p, err := c.cfg.Store.GetProgress(ctx, c.cfg.Identity.ID)
	if err == nil {
		return p, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	p, err = c.cfg.Store.CreateProgressIfAbsent(ctx, c.cfg.Identity.ID, c.cfg.Defaults)
	if err != nil {
		return nil, err
	}

	evt := events.ProgressCreated{Progress: p}
	if err := c.cfg.Publisher.Publish(ctx, events.TopicProgressCreated, evt); err != nil {
		slog.Warn("failed to publish progress creation", "identity", p.IdentityID, "error", err)
	}
	return p, nil
}

// reconcile folds a server-provided state into the cached record. The
// cache is never authoritative, but a completion flag this controller has
// observed true must never flip back: flags merge with OR. Caller holds c.mu.
func (c *Controller) reconcile(p *model.Progress) {
	merged := p.Clone()
	if c.progress != nil {
		merged.Step1Completed = merged.Step1Completed || c.progress.Step1Completed
		merged.Step2Completed = merged.Step2Completed || c.progress.Step2Completed
		merged.Step3Completed = merged.Step3Completed || c.progress.Step3Completed
	}
	c.progress = merged
}

// advanceLocked moves to Advanced and schedules teardown. Caller holds c.mu.
func (c *Controller) advanceLocked() {
	c.state = StateAdvanced
	c.redirect = c.step.Next
	c.fieldErr = ""
	c.errMsg = ""
	go c.Unmount()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Step:       c.step.Number,
		State:      c.state,
		Redirect:   c.redirect,
		FieldError: c.fieldErr,
		Error:      c.errMsg,
	}
	if c.progress != nil {
		if fee := c.progress.Fee(c.step.Number); fee != nil {
			v := *fee
			s.Fee = &v
		}
		s.DestinationWallet = c.progress.DestinationWallet
		if c.step.Number >= 2 {
			s.RemitWallet = c.progress.RemitWallet
			s.RemitNetwork = c.progress.RemitNetwork
		}
	}
	if c.timer != nil {
		s.Remaining = c.timer.Remaining()
	}
	return s
}

// publish emits the updated record on its per-record subject and the
// general updated topic, best-effort.
func (c *Controller) publish(ctx context.Context, p *model.Progress, changes map[string]any) {
	evt := events.ProgressUpdated{Progress: p, Changes: changes, Actor: "user"}
	for _, topic := range []string{events.RecordTopic(p.IdentityID), events.TopicProgressUpdated} {
		if err := c.cfg.Publisher.Publish(ctx, topic, evt); err != nil {
			slog.Warn("failed to publish progress update", "topic", topic, "identity", p.IdentityID, "error", err)
		}
	}
}

func stepFlagName(n int) string {
	switch n {
	case 1:
		return "step1_completed"
	case 2:
		return "step2_completed"
	default:
		return "step3_completed"
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
