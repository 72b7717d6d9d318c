package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kodaktechie/recoveryd/internal/events"
)

func TestMatchTopicPattern(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"recovery.progress.updated", "recovery.progress.updated", true},
		{"recovery.progress.updated", "recovery.progress.created", false},
		{"recovery.progress.*", "recovery.progress.updated", true},
		{"recovery.progress.*", "recovery.progress.record.id-x", false},
		{"recovery.>", "recovery.progress.record.id-x", true},
		{"recovery.>", "recovery", false},
		{"*.progress.*", "recovery.progress.updated", true},
		{"recovery.session.*", "recovery.progress.updated", false},
	}
	for _, tt := range tests {
		if got := matchTopicPattern(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("matchTopicPattern(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestStreamHubReplay(t *testing.T) {
	h := newStreamHub()
	h.broadcast("recovery.progress.created", []byte(`{"n":1}`))
	h.broadcast("recovery.progress.updated", []byte(`{"n":2}`))
	h.broadcast("recovery.progress.updated", []byte(`{"n":3}`))

	replayed := h.eventsSince(1)
	if len(replayed) != 2 {
		t.Fatalf("replayed %d events, want 2", len(replayed))
	}
	if replayed[0].ID != 2 || replayed[1].ID != 3 {
		t.Fatalf("replay order: %d, %d", replayed[0].ID, replayed[1].ID)
	}

	if got := h.eventsSince(3); got != nil {
		t.Fatalf("caught-up replay returned %d events", len(got))
	}
}

func TestStreamHubTopicFilter(t *testing.T) {
	h := newStreamHub()
	c := h.subscribe([]string{"recovery.session.*"})
	defer h.unsubscribe(c)

	h.broadcast("recovery.progress.updated", []byte(`{}`))
	h.broadcast("recovery.session.expired", []byte(`{}`))

	select {
	case evt := <-c.ch:
		if evt.Topic != "recovery.session.expired" {
			t.Fatalf("delivered topic %q, want the session event only", evt.Topic)
		}
	default:
		t.Fatal("filtered subscriber got nothing")
	}
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected second delivery: %q", evt.Topic)
	default:
	}
}

func TestHandleEventStream(t *testing.T) {
	s, _, h := newTestServer(t)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET",
		srv.URL+"/v1/events/stream?topics=recovery.progress.>", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Publish once the subscription is registered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.hub.mu.RLock()
		n := len(s.hub.clients)
		s.hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.publishEvent(context.Background(), events.TopicProgressUpdated, events.ProgressUpdated{Actor: "operator"})

	scanner := bufio.NewScanner(resp.Body)
	var gotEvent, gotData bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:"+events.TopicProgressUpdated {
			gotEvent = true
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, `"operator"`) {
			gotData = true
		}
		if gotEvent && gotData {
			return
		}
	}
	t.Fatalf("stream ended without the published event (event=%v data=%v): %v", gotEvent, gotData, scanner.Err())
}
