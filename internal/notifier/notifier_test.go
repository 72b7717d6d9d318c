package notifier

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestBus(t *testing.T) (*events.NATSPublisher, *Notifier) {
	t.Helper()
	url := startTestNATS(t)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	return pub, New(sub)
}

func TestWatch_DeliversMutation(t *testing.T) {
	pub, n := newTestBus(t)

	got := make(chan *model.Progress, 1)
	sub, err := n.Watch("u1", func(p *model.Progress) { got <- p })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	evt := events.ProgressUpdated{
		Progress: &model.Progress{IdentityID: "u1", Step1Completed: true},
		Actor:    "operator",
	}
	if err := pub.Publish(context.Background(), events.RecordTopic("u1"), evt); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case p := <-got:
		if !p.Step1Completed {
			t.Error("delivered record missing step1 flag")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

// The notifier must not assume self-writes are suppressed: a mutation
// published by the same process is delivered like any other.
func TestWatch_DeliversSelfWrites(t *testing.T) {
	pub, n := newTestBus(t)

	got := make(chan *model.Progress, 1)
	sub, err := n.Watch("u1", func(p *model.Progress) { got <- p })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	evt := events.ProgressUpdated{
		Progress: &model.Progress{IdentityID: "u1", DestinationWallet: "abc123"},
		Actor:    "user",
	}
	if err := pub.Publish(context.Background(), events.RecordTopic("u1"), evt); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case p := <-got:
		if p.DestinationWallet != "abc123" {
			t.Errorf("wallet = %q", p.DestinationWallet)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for self-write")
	}
}

func TestWatch_IgnoresOtherIdentities(t *testing.T) {
	pub, n := newTestBus(t)

	got := make(chan *model.Progress, 2)
	sub, err := n.Watch("u1", func(p *model.Progress) { got <- p })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	other := events.ProgressUpdated{Progress: &model.Progress{IdentityID: "u2"}}
	if err := pub.Publish(context.Background(), events.RecordTopic("u2"), other); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	mine := events.ProgressUpdated{Progress: &model.Progress{IdentityID: "u1"}}
	if err := pub.Publish(context.Background(), events.RecordTopic("u1"), mine); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case p := <-got:
		if p.IdentityID != "u1" {
			t.Errorf("delivered identity %q", p.IdentityID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	select {
	case p := <-got:
		t.Fatalf("unexpected extra delivery: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscription_CancelStopsDelivery(t *testing.T) {
	pub, n := newTestBus(t)

	got := make(chan *model.Progress, 1)
	sub, err := n.Watch("u1", func(p *model.Progress) { got <- p })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	sub.Cancel()
	// Cancel is idempotent.
	sub.Cancel()

	evt := events.ProgressUpdated{Progress: &model.Progress{IdentityID: "u1"}}
	if err := pub.Publish(context.Background(), events.RecordTopic("u1"), evt); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case p := <-got:
		t.Fatalf("delivery after cancel: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_SkipsUndecodablePayloads(t *testing.T) {
	if decodeProgress([]byte("not json")) != nil {
		t.Error("undecodable payload should yield nil")
	}
	if decodeProgress([]byte(`{"changes":{}}`)) != nil {
		t.Error("payload without a record should yield nil")
	}
}
