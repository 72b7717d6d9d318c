package workflow

import (
	"context"
	"testing"

	"github.com/kodaktechie/recoveryd/internal/session"
)

func TestRegistryMountAndGet(t *testing.T) {
	st := newMemStore()
	r := NewRegistry()
	defer r.Shutdown()

	c := r.Mount(context.Background(), testConfig(st, 1))
	if got := r.Get("id-frank", 1); got != c {
		t.Fatal("Get did not return the mounted controller")
	}
	if got := r.Get("id-frank", 2); got != nil {
		t.Fatal("Get returned a controller for the wrong step")
	}
	if got := r.Get("id-other", 1); got != nil {
		t.Fatal("Get returned a controller for an unknown identity")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryMountReplacesPrevious(t *testing.T) {
	st := newMemStore()
	r := NewRegistry()
	defer r.Shutdown()

	first := r.Mount(context.Background(), testConfig(st, 1))
	if snap := first.ConfirmPayment(context.Background(), "0xdest"); snap.State != StateAdvanced {
		t.Fatalf("confirm: %s", snap.State)
	}

	second := r.Mount(context.Background(), testConfig(st, 2))
	if got := r.Get("id-frank", 2); got != second {
		t.Fatal("replacement controller not installed")
	}
	if got := r.Get("id-frank", 1); got != nil {
		t.Fatal("stale controller still registered")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 per identity", r.Len())
	}
}

func TestRegistryUnauthenticatedMountNotTracked(t *testing.T) {
	st := newMemStore()
	r := NewRegistry()

	cfg := testConfig(st, 1)
	cfg.Identity = session.Identity{}
	c := r.Mount(context.Background(), cfg)
	if c.Snapshot().State != StateBlocked {
		t.Fatalf("state = %s", c.Snapshot().State)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRegistryDrop(t *testing.T) {
	st := newMemStore()
	r := NewRegistry()

	r.Mount(context.Background(), testConfig(st, 1))
	r.Drop("id-frank")
	r.Drop("id-frank") // unknown id is a no-op

	if r.Len() != 0 {
		t.Fatalf("Len = %d after Drop, want 0", r.Len())
	}
	if got := r.Get("id-frank", 1); got != nil {
		t.Fatal("dropped controller still retrievable")
	}
}
