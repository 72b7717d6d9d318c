// Package server hosts the recovery workflow over HTTP/JSON: the user
// surface that mounts step controllers, the operator surface that edits
// records out-of-band, and an SSE stream mirroring every published event.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/notifier"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
	"github.com/kodaktechie/recoveryd/internal/workflow"
)

// Options assembles a RecoveryServer. Subscriber may be nil, which
// disables push reconciliation; controllers then advance on manual
// confirmation only.
type Options struct {
	Store         store.Store
	Publisher     events.Publisher
	Subscriber    events.Subscriber
	Gate          *session.Gate
	Defaults      store.Defaults
	StepDeadline  time.Duration
	SessionTTL    time.Duration
	OperatorToken string
}

// RecoveryServer owns the live controller registry and the HTTP surface.
type RecoveryServer struct {
	store        store.Store
	publisher    events.Publisher
	notifier     *notifier.Notifier
	gate         *session.Gate
	registry     *workflow.Registry
	defaults     store.Defaults
	stepDeadline time.Duration
	sessionTTL   time.Duration
	opToken      string
	hub          *streamHub
	metrics      *metricsCollector
}

// NewRecoveryServer wires the server. Every event published by a
// controller or an operator handler also reaches connected SSE clients
// through the stream hub.
func NewRecoveryServer(opts Options) *RecoveryServer {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.StepDeadline <= 0 {
		opts.StepDeadline = 8 * time.Hour
	}

	hub := newStreamHub()
	registry := workflow.NewRegistry()

	s := &RecoveryServer{
		store:        opts.Store,
		publisher:    &fanoutPublisher{inner: opts.Publisher, hub: hub},
		gate:         opts.Gate,
		registry:     registry,
		defaults:     opts.Defaults,
		stepDeadline: opts.StepDeadline,
		sessionTTL:   opts.SessionTTL,
		opToken:      opts.OperatorToken,
		hub:          hub,
	}
	if opts.Subscriber != nil {
		s.notifier = notifier.New(opts.Subscriber)
	}
	s.metrics = newMetricsCollector(func() float64 {
		return float64(registry.Len())
	})
	return s
}

// Shutdown unmounts every live controller.
func (s *RecoveryServer) Shutdown() {
	s.registry.Shutdown()
}

// publishEvent emits a server-originated event, best-effort.
func (s *RecoveryServer) publishEvent(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// fanoutPublisher forwards events to the bus and mirrors them to the SSE
// stream hub. Mirroring never fails the publish.
type fanoutPublisher struct {
	inner events.Publisher
	hub   *streamHub
}

func (p *fanoutPublisher) Publish(ctx context.Context, topic string, event any) error {
	if payload, err := json.Marshal(event); err != nil {
		slog.Warn("failed to marshal event for stream broadcast", "topic", topic, "error", err)
	} else {
		p.hub.broadcast(topic, payload)
	}
	return p.inner.Publish(ctx, topic, event)
}

func (p *fanoutPublisher) Close() error { return p.inner.Close() }
