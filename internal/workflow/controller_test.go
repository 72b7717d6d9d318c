package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kodaktechie/recoveryd/internal/events"
	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/notifier"
	"github.com/kodaktechie/recoveryd/internal/session"
	"github.com/kodaktechie/recoveryd/internal/store"
)

// memStore is an in-memory store.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	records map[string]*model.Progress

	getErr     error
	updateErr  error
	applyOnErr bool          // apply the patch even when updateErr is returned
	updateGate chan struct{} // when set, UpdateProgress blocks until closed
	updates    int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*model.Progress)}
}

func (s *memStore) GetProgress(_ context.Context, identityID string) (*model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.records[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) CreateProgressIfAbsent(_ context.Context, identityID string, defaults store.Defaults) (*model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.records[identityID]; ok {
		return p.Clone(), nil
	}
	now := time.Now().UTC()
	p := &model.Progress{
		IdentityID:   identityID,
		RemitWallet:  defaults.RemitWallet,
		RemitNetwork: defaults.RemitNetwork,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.records[identityID] = p
	return p.Clone(), nil
}

func (s *memStore) UpdateProgress(_ context.Context, identityID string, patch model.ProgressPatch) (*model.Progress, error) {
	s.mu.Lock()
	gate := s.updateGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++

	p, ok := s.records[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.updateErr != nil && !s.applyOnErr {
		return nil, s.updateErr
	}
	if err := model.ValidatePatch(p, patch); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	applyPatch(p, patch)
	p.UpdatedAt = time.Now().UTC()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return p.Clone(), nil
}

func (s *memStore) EnsureFeeAssigned(_ context.Context, identityID string, step int, defaultFee int64) (*model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Fee(step) == nil {
		fee := defaultFee
		switch step {
		case 1:
			p.Step1Fee = &fee
		case 2:
			p.Step2Fee = &fee
		case 3:
			p.Step3Fee = &fee
		}
		p.UpdatedAt = time.Now().UTC()
	}
	return p.Clone(), nil
}

func (s *memStore) ListProgress(_ context.Context) ([]*model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Progress, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) record(t *testing.T, identityID string) *model.Progress {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[identityID]
	if !ok {
		t.Fatalf("no record for %s", identityID)
	}
	return p.Clone()
}

func (s *memStore) seed(p *model.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.IdentityID] = p
}

func applyPatch(p *model.Progress, patch model.ProgressPatch) {
	if patch.DestinationWallet != nil {
		p.DestinationWallet = *patch.DestinationWallet
	}
	if patch.Step1Completed != nil {
		p.Step1Completed = p.Step1Completed || *patch.Step1Completed
	}
	if patch.Step2Completed != nil {
		p.Step2Completed = p.Step2Completed || *patch.Step2Completed
	}
	if patch.Step3Completed != nil {
		p.Step3Completed = p.Step3Completed || *patch.Step3Completed
	}
	if patch.Step1Fee != nil {
		p.Step1Fee = patch.Step1Fee
	}
	if patch.Step2Fee != nil {
		p.Step2Fee = patch.Step2Fee
	}
	if patch.Step3Fee != nil {
		p.Step3Fee = patch.Step3Fee
	}
	if patch.RemitWallet != nil {
		p.RemitWallet = *patch.RemitWallet
	}
	if patch.RemitNetwork != nil {
		p.RemitNetwork = *patch.RemitNetwork
	}
}

// memBus is an in-process Publisher + Subscriber pair.
type memBus struct {
	mu    sync.Mutex
	subs  map[string][]chan []byte
	sends map[string]int
}

func newMemBus() *memBus {
	return &memBus{
		subs:  make(map[string][]chan []byte),
		sends: make(map[string]int),
	}
}

func (b *memBus) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends[topic]++
	for _, ch := range b.subs[topic] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (b *memBus) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			chans := b.subs[topic]
			for i, c := range chans {
				if c == ch {
					b.subs[topic] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (b *memBus) Close() error { return nil }

func (b *memBus) published(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sends[topic]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func testIdentity() session.Identity {
	return session.Identity{ID: "id-frank", Email: "frank@example.com"}
}

func testConfig(st store.Store, step int) Config {
	def, _ := model.StepByNumber(step)
	return Config{
		Step:      def,
		Identity:  testIdentity(),
		Store:     st,
		Publisher: &events.NoopPublisher{},
		Defaults:  store.Defaults{RemitWallet: "bc1qremit", RemitNetwork: "USDT-TRC20"},
		Deadline:  8 * time.Hour,
	}
}

func TestMountUnauthenticatedBlocksToLogin(t *testing.T) {
	st := newMemStore()
	cfg := testConfig(st, 1)
	cfg.Identity = session.Identity{}

	c := Mount(context.Background(), cfg)
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.State != StateBlocked {
		t.Fatalf("state = %s, want %s", snap.State, StateBlocked)
	}
	if snap.Redirect != model.RouteLogin {
		t.Fatalf("redirect = %s, want %s", snap.Redirect, model.RouteLogin)
	}
	if len(st.records) != 0 {
		t.Fatalf("unauthenticated mount created %d records", len(st.records))
	}
}

func TestMountCreatesRecordAndAssignsFee(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	cfg := testConfig(st, 1)
	cfg.Publisher = bus

	c := Mount(context.Background(), cfg)
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state = %s, want %s", snap.State, StateReady)
	}
	if snap.Fee == nil || *snap.Fee != 75000 {
		t.Fatalf("fee = %v, want 75000", snap.Fee)
	}
	if snap.RemitWallet != "" {
		t.Fatalf("step 1 snapshot carries remit wallet %q", snap.RemitWallet)
	}

	rec := st.record(t, "id-frank")
	if rec.RemitWallet != "bc1qremit" || rec.RemitNetwork != "USDT-TRC20" {
		t.Fatalf("record remit = %q/%q", rec.RemitWallet, rec.RemitNetwork)
	}
	if got := bus.published(events.TopicProgressCreated); got != 1 {
		t.Fatalf("published %d creation events, want 1", got)
	}
}

func TestMountCompletedStepRoutesForward(t *testing.T) {
	st := newMemStore()
	st.seed(&model.Progress{IdentityID: "id-frank", Step1Completed: true})

	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.State != StateBlocked || snap.Redirect != model.RouteStep2 {
		t.Fatalf("got %s/%s, want %s/%s", snap.State, snap.Redirect, StateBlocked, model.RouteStep2)
	}
	if st.record(t, "id-frank").Step1Fee != nil {
		t.Fatal("completed step still assigned a fee")
	}
}

func TestMountFullyCompleteRoutesToCompletion(t *testing.T) {
	st := newMemStore()
	st.seed(&model.Progress{
		IdentityID:     "id-frank",
		Step1Completed: true,
		Step2Completed: true,
		Step3Completed: true,
	})

	// Every step routes straight to the completion view, not to the next
	// step in the chain.
	for step := 1; step <= model.StepCount; step++ {
		c := Mount(context.Background(), testConfig(st, step))
		snap := c.Snapshot()
		c.Unmount()

		if snap.State != StateBlocked || snap.Redirect != model.RouteComplete {
			t.Fatalf("step %d: got %s/%s, want %s/%s",
				step, snap.State, snap.Redirect, StateBlocked, model.RouteComplete)
		}
	}
	if st.record(t, "id-frank").Step1Fee != nil {
		t.Fatal("finished workflow still assigned a fee")
	}
}

func TestMountAheadOfProgressRoutesBack(t *testing.T) {
	st := newMemStore()
	st.seed(&model.Progress{IdentityID: "id-frank", Step1Completed: true})

	c := Mount(context.Background(), testConfig(st, 3))
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.State != StateBlocked || snap.Redirect != model.RouteStep2 {
		t.Fatalf("got %s/%s, want %s/%s", snap.State, snap.Redirect, StateBlocked, model.RouteStep2)
	}
}

func TestMountKeepsPreviouslyAssignedFee(t *testing.T) {
	st := newMemStore()
	fee := int64(90000)
	st.seed(&model.Progress{IdentityID: "id-frank", Step1Fee: &fee})

	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.Fee == nil || *snap.Fee != 90000 {
		t.Fatalf("fee = %v, want the previously assigned 90000", snap.Fee)
	}
}

func TestMountStoreErrorIsRetryable(t *testing.T) {
	st := newMemStore()
	st.getErr = store.ErrUnavailable

	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	snap := c.Snapshot()
	if snap.State != StateError {
		t.Fatalf("state = %s, want %s", snap.State, StateError)
	}
	if snap.Error == "" {
		t.Fatal("error state with no message")
	}
}

func TestConfirmPaymentAdvances(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	cfg := testConfig(st, 2)
	cfg.Publisher = bus
	st.seed(&model.Progress{IdentityID: "id-frank", Step1Completed: true, RemitWallet: "bc1qremit", RemitNetwork: "USDT-TRC20"})

	c := Mount(context.Background(), cfg)

	snap := c.ConfirmPayment(context.Background(), "  0xdest  ")
	if snap.State != StateAdvanced || snap.Redirect != model.RouteStep3 {
		t.Fatalf("got %s/%s, want %s/%s", snap.State, snap.Redirect, StateAdvanced, model.RouteStep3)
	}

	rec := st.record(t, "id-frank")
	if !rec.Step2Completed {
		t.Fatal("step 2 flag not persisted")
	}
	if rec.DestinationWallet != "0xdest" {
		t.Fatalf("destination wallet = %q, want trimmed %q", rec.DestinationWallet, "0xdest")
	}
	if got := bus.published(events.RecordTopic("id-frank")); got == 0 {
		t.Fatal("no per-record update published")
	}
}

func TestConfirmPaymentEmptyWallet(t *testing.T) {
	st := newMemStore()
	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	snap := c.ConfirmPayment(context.Background(), "   ")
	if snap.State != StateReady {
		t.Fatalf("state = %s, want %s", snap.State, StateReady)
	}
	if snap.FieldError == "" {
		t.Fatal("empty wallet accepted without a field error")
	}
	if st.updates != 0 {
		t.Fatalf("empty wallet reached the store (%d updates)", st.updates)
	}

	// The field error clears on the next valid confirm.
	snap = c.ConfirmPayment(context.Background(), "0xdest")
	if snap.State != StateAdvanced || snap.FieldError != "" {
		t.Fatalf("got %s with field error %q", snap.State, snap.FieldError)
	}
}

func TestConfirmPaymentReentrancyGuard(t *testing.T) {
	st := newMemStore()
	gate := make(chan struct{})
	st.updateGate = gate

	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	done := make(chan Snapshot, 1)
	go func() { done <- c.ConfirmPayment(context.Background(), "0xdest") }()

	waitFor(t, func() bool { return c.Snapshot().State == StateSubmitting }, "submitting state")

	// Second confirm while the first is in flight must not write.
	snap := c.ConfirmPayment(context.Background(), "0xother")
	if snap.State != StateSubmitting {
		t.Fatalf("re-entrant confirm state = %s, want %s", snap.State, StateSubmitting)
	}

	close(gate)
	snap = <-done
	if snap.State != StateAdvanced {
		t.Fatalf("first confirm state = %s, want %s", snap.State, StateAdvanced)
	}

	st.mu.Lock()
	updates := st.updates
	st.mu.Unlock()
	if updates != 1 {
		t.Fatalf("store saw %d updates, want 1", updates)
	}
}

func TestConfirmFailureWithLandedWriteAdvances(t *testing.T) {
	st := newMemStore()
	st.updateErr = errors.New("connection reset")
	st.applyOnErr = true

	c := Mount(context.Background(), testConfig(st, 1))

	snap := c.ConfirmPayment(context.Background(), "0xdest")
	if snap.State != StateAdvanced {
		t.Fatalf("state = %s, want %s when re-fetch shows the write landed", snap.State, StateAdvanced)
	}
}

func TestConfirmFailureStaysRetryable(t *testing.T) {
	st := newMemStore()
	st.updateErr = store.ErrUnavailable

	c := Mount(context.Background(), testConfig(st, 1))
	defer c.Unmount()

	snap := c.ConfirmPayment(context.Background(), "0xdest")
	if snap.State != StateError {
		t.Fatalf("state = %s, want %s", snap.State, StateError)
	}
	if st.record(t, "id-frank").Step1Completed {
		t.Fatal("failed confirm still raised the flag")
	}
}

func TestPushedCompletionAdvances(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	cfg := testConfig(st, 1)
	cfg.Publisher = bus
	cfg.Notifier = notifier.New(bus)

	c := Mount(context.Background(), cfg)

	pushed := st.record(t, "id-frank")
	pushed.Step1Completed = true
	evt := events.ProgressUpdated{Progress: pushed, Actor: "operator"}
	if err := bus.Publish(context.Background(), events.RecordTopic("id-frank"), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return c.Snapshot().State == StateAdvanced }, "push-driven advance")

	snap := c.Snapshot()
	if snap.Redirect != model.RouteStep2 {
		t.Fatalf("redirect = %s, want %s", snap.Redirect, model.RouteStep2)
	}
	if st.record(t, "id-frank").Step1Completed {
		t.Fatal("push-driven advance wrote to the store")
	}
}

func TestStalePushDoesNotRegress(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	cfg := testConfig(st, 2)
	cfg.Publisher = bus
	cfg.Notifier = notifier.New(bus)
	st.seed(&model.Progress{IdentityID: "id-frank", Step1Completed: true})

	c := Mount(context.Background(), cfg)
	defer c.Unmount()

	// A stale push showing every flag false must not move the controller.
	stale := &model.Progress{IdentityID: "id-frank"}
	evt := events.ProgressUpdated{Progress: stale, Actor: "operator"}
	if err := bus.Publish(context.Background(), events.RecordTopic("id-frank"), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := c.Snapshot().State; got != StateReady {
		t.Fatalf("state = %s after stale push, want %s", got, StateReady)
	}

	// And the locally observed step-1 completion survives: confirming step 2
	// still passes the store's ordering validation.
	if snap := c.ConfirmPayment(context.Background(), "0xdest"); snap.State != StateAdvanced {
		t.Fatalf("confirm after stale push: %s, want %s", snap.State, StateAdvanced)
	}
}

func TestDeadlineExpiryEjects(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	gate := session.NewGate([]byte("test-secret"))
	token, err := gate.Issue(testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var expiredMu sync.Mutex
	var expiredStep int
	cfg := testConfig(st, 1)
	cfg.Publisher = bus
	cfg.Gate = gate
	cfg.Token = token
	cfg.Deadline = 30 * time.Millisecond
	cfg.Tick = 10 * time.Millisecond
	cfg.OnExpire = func(_ string, step int) {
		expiredMu.Lock()
		expiredStep = step
		expiredMu.Unlock()
	}

	c := Mount(context.Background(), cfg)
	defer c.Unmount()

	waitFor(t, func() bool {
		snap := c.Snapshot()
		return snap.State == StateBlocked && snap.Redirect == model.RouteLogin
	}, "deadline ejection")

	if _, ok := gate.Identify(token); ok {
		t.Fatal("token still valid after deadline expiry")
	}
	if st.record(t, "id-frank").Step1Completed {
		t.Fatal("expiry mutated a completion flag")
	}
	waitFor(t, func() bool { return bus.published(events.TopicSessionExpired) == 1 }, "expiry event")

	expiredMu.Lock()
	defer expiredMu.Unlock()
	if expiredStep != 1 {
		t.Fatalf("OnExpire step = %d, want 1", expiredStep)
	}
}

func TestMountRacingPushTearsDownCleanly(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()

	completed := &model.Progress{IdentityID: "id-frank", Step1Completed: true}

	// Hammer pushes for the whole duration of Mount so some land in the
	// window between the watch going live and the deadline starting.
	stop := make(chan struct{})
	var pusher sync.WaitGroup
	pusher.Add(1)
	go func() {
		defer pusher.Done()
		evt := events.ProgressUpdated{Progress: completed, Actor: "operator"}
		for {
			select {
			case <-stop:
				return
			default:
				_ = bus.Publish(context.Background(), events.RecordTopic("id-frank"), evt)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		cfg := testConfig(st, 1)
		cfg.Publisher = bus
		cfg.Notifier = notifier.New(bus)
		cfg.Deadline = time.Hour

		c := Mount(context.Background(), cfg)

		waitFor(t, func() bool { return c.Snapshot().State == StateAdvanced }, "push-driven advance")
		// The deadline must not survive teardown: a leaked timer would
		// keep a nonzero countdown in the snapshot.
		waitFor(t, func() bool { return c.Snapshot().Remaining == 0 }, "deadline teardown")

		st.mu.Lock()
		delete(st.records, "id-frank")
		st.mu.Unlock()
	}

	close(stop)
	pusher.Wait()
}

func TestUnmountIdempotent(t *testing.T) {
	st := newMemStore()
	bus := newMemBus()
	cfg := testConfig(st, 1)
	cfg.Publisher = bus
	cfg.Notifier = notifier.New(bus)

	c := Mount(context.Background(), cfg)
	c.Unmount()
	c.Unmount()
}
