// Package notifier delivers Progress record mutations to watching
// controllers. It is a thin decoding layer over the event bus: one watch
// per identity, at-least-once delivery, self-writes included.
package notifier

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
)

// Subscription is a handle to an active watch. Cancel must be called on
// controller teardown to avoid leaking the underlying channel; it is
// idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
}

// Cancel stops delivery and releases the channel.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Notifier decodes per-record events into Progress snapshots.
type Notifier struct {
	sub events.Subscriber
}

// New returns a Notifier reading from the given subscriber.
func New(sub events.Subscriber) *Notifier {
	return &Notifier{sub: sub}
}

// Watch subscribes to mutations of one identity's record. onChange is
// invoked from a dedicated goroutine with the record state carried by each
// event; payloads always reflect a state that existed at or after
// subscribe time. Delivery across distinct mutations is not strictly FIFO.
func (n *Notifier) Watch(identityID string, onChange func(*model.Progress)) (*Subscription, error) {
	ch, cancel, err := n.sub.Subscribe(events.RecordTopic(identityID))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for payload := range ch {
			p := decodeProgress(payload)
			if p == nil {
				continue
			}
			if p.IdentityID != identityID {
				// A mis-routed payload must never leak across records.
				slog.Warn("notifier: dropping payload for wrong identity",
					"want", identityID, "got", p.IdentityID)
				continue
			}
			onChange(p)
		}
	}()

	return &Subscription{cancel: cancel, done: done}, nil
}

// decodeProgress extracts the record from a created or updated event.
// Both payload shapes carry the full record under "progress".
func decodeProgress(payload []byte) *model.Progress {
	var evt struct {
		Progress *model.Progress `json:"progress"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		slog.Warn("notifier: undecodable payload", "error", err)
		return nil
	}
	return evt.Progress
}
