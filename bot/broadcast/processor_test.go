package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"funnelgram/bot/funnel"
	"funnelgram/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu         sync.Mutex
	broadcasts map[string]entity.Broadcast
	audiences  map[string][]entity.Recipient
}

func newFakeStore(bs ...entity.Broadcast) *fakeStore {
	s := &fakeStore{
		broadcasts: make(map[string]entity.Broadcast),
		audiences:  make(map[string][]entity.Recipient),
	}
	for _, b := range bs {
		s.broadcasts[b.ID] = b
	}
	return s
}

func (s *fakeStore) GetBroadcast(_ context.Context, id string) (*entity.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, nil
	}
	cp := b
	return &cp, nil
}

func (s *fakeStore) SaveBroadcast(_ context.Context, b *entity.Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts[b.ID] = *b
	return nil
}

func (s *fakeStore) SaveAudience(_ context.Context, id string, rcpts []entity.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audiences[id] = append([]entity.Recipient(nil), rcpts...)
	return nil
}

func (s *fakeStore) LoadAudience(_ context.Context, id string) ([]entity.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Recipient(nil), s.audiences[id]...), nil
}

func (s *fakeStore) ListDueScheduled(_ context.Context, _ time.Time) ([]entity.Broadcast, error) {
	return nil, nil
}

type fakeAudience struct {
	rcpts []entity.Recipient
}

func (f *fakeAudience) Audience(_ context.Context, _ string, _ entity.AudienceFilter) ([]entity.Recipient, error) {
	return f.rcpts, nil
}

// countingSender records per-chat attempts and maps chat IDs onto outcomes.
type countingSender struct {
	mu       sync.Mutex
	attempts map[int64]int
	blocked  map[int64]bool
	failing  map[int64]bool
	onSend   func(chatID int64, attempt int)
}

func newCountingSender() *countingSender {
	return &countingSender{
		attempts: make(map[int64]int),
		blocked:  make(map[int64]bool),
		failing:  make(map[int64]bool),
	}
}

func (s *countingSender) Send(_ context.Context, msg *entity.OutboundMessage) error {
	s.mu.Lock()
	s.attempts[msg.ChatID]++
	attempt := s.attempts[msg.ChatID]
	blocked := s.blocked[msg.ChatID]
	failing := s.failing[msg.ChatID]
	hook := s.onSend
	s.mu.Unlock()

	if hook != nil {
		hook(msg.ChatID, attempt)
	}
	if blocked {
		return funnel.ErrRecipientBlocked
	}
	if failing {
		return errors.New("telegram 500")
	}
	return nil
}

func (s *countingSender) attemptCount(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[chatID]
}

func recipients(n int) []entity.Recipient {
	out := make([]entity.Recipient, n)
	for i := range out {
		out[i] = entity.Recipient{UserID: int64(i + 1), ChatID: int64(i + 1)}
	}
	return out
}

func fastConfig() Config {
	return Config{Workers: 2, RatePerSecond: 10000, RetryLimit: 1, PersistEvery: 1}
}

func waitStatus(t *testing.T, store *fakeStore, id string, want entity.BroadcastStatus) *entity.Broadcast {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b, _ := store.GetBroadcast(context.Background(), id)
		if b != nil && b.Status == want {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	b, _ := store.GetBroadcast(context.Background(), id)
	t.Fatalf("broadcast never reached %s, last: %+v", want, b)
	return nil
}

func TestProcessorCompletesWithExactCounters(t *testing.T) {
	store := newFakeStore(entity.Broadcast{
		ID: "b1", BotID: "bot", Status: entity.BroadcastDraft,
		Content: entity.Content{Type: "text", Text: "sale"},
	})
	sender := newCountingSender()
	sender.blocked[3] = true
	sender.failing[5] = true

	p := NewProcessor(store, &fakeAudience{rcpts: recipients(7)}, sender, fastConfig(), testLogger())
	defer p.Shutdown()

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	b := waitStatus(t, store, "b1", entity.BroadcastCompleted)

	if b.Total != 7 || b.Cursor != 7 {
		t.Errorf("total/cursor = %d/%d, want 7/7", b.Total, b.Cursor)
	}
	if b.Sent != 5 || b.Blocked != 1 || b.Failed != 1 {
		t.Errorf("counters sent/blocked/failed = %d/%d/%d, want 5/1/1", b.Sent, b.Blocked, b.Failed)
	}
	if got := b.Processed(); got != int64(b.Total) {
		t.Errorf("Processed() = %d, want %d", got, b.Total)
	}
	if b.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// every recipient attempted exactly once, including the blocked one
	for id := int64(1); id <= 7; id++ {
		if got := sender.attemptCount(id); got != 1 {
			t.Errorf("chat %d attempted %d times, want 1", id, got)
		}
	}
}

func TestProcessorRetriesTransientErrors(t *testing.T) {
	store := newFakeStore(entity.Broadcast{ID: "b1", BotID: "bot", Status: entity.BroadcastDraft})
	sender := newCountingSender()
	sender.failing[1] = true
	sender.blocked[2] = true

	cfg := fastConfig()
	cfg.RetryLimit = 2
	p := NewProcessor(store, &fakeAudience{rcpts: recipients(2)}, sender, cfg, testLogger())
	defer p.Shutdown()

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitStatus(t, store, "b1", entity.BroadcastCompleted)

	if got := sender.attemptCount(1); got != 2 {
		t.Errorf("transient failure attempted %d times, want retry limit 2", got)
	}
	if got := sender.attemptCount(2); got != 1 {
		t.Errorf("blocked recipient attempted %d times, want 1", got)
	}
}

func TestProcessorPauseResumeCoversEveryRecipientOnce(t *testing.T) {
	store := newFakeStore(entity.Broadcast{ID: "b1", BotID: "bot", Status: entity.BroadcastDraft})
	sender := newCountingSender()

	p := NewProcessor(store, &fakeAudience{rcpts: recipients(6)}, sender, fastConfig(), testLogger())
	defer p.Shutdown()

	// the first delivery requests a pause; the chunk in flight still finishes
	var once sync.Once
	sender.onSend = func(int64, int) {
		once.Do(func() {
			if err := p.Pause(context.Background(), "b1"); err != nil {
				t.Errorf("Pause() = %v", err)
			}
		})
	}

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	b := waitStatus(t, store, "b1", entity.BroadcastPaused)

	if b.Cursor == 0 || b.Cursor >= 6 {
		t.Fatalf("paused cursor = %d, want mid-run chunk boundary", b.Cursor)
	}
	if b.Sent != int64(b.Cursor) {
		t.Errorf("sent = %d at cursor %d, want equal", b.Sent, b.Cursor)
	}

	sender.onSend = nil
	if err := p.Resume(context.Background(), "b1"); err != nil {
		t.Fatalf("Resume() = %v", err)
	}
	b = waitStatus(t, store, "b1", entity.BroadcastCompleted)

	if b.Sent != 6 || b.Cursor != 6 {
		t.Errorf("after resume sent/cursor = %d/%d, want 6/6", b.Sent, b.Cursor)
	}
	for id := int64(1); id <= 6; id++ {
		if got := sender.attemptCount(id); got != 1 {
			t.Errorf("chat %d attempted %d times across pause/resume, want 1", id, got)
		}
	}
}

func TestProcessorAutoPauseOnConsecutiveFailures(t *testing.T) {
	store := newFakeStore(entity.Broadcast{ID: "b1", BotID: "bot", Status: entity.BroadcastDraft})
	sender := newCountingSender()
	for id := int64(1); id <= 10; id++ {
		sender.failing[id] = true
	}

	cfg := Config{Workers: 1, RatePerSecond: 10000, RetryLimit: 1, FailurePause: 3, PersistEvery: 1}
	p := NewProcessor(store, &fakeAudience{rcpts: recipients(10)}, sender, cfg, testLogger())
	defer p.Shutdown()

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	b := waitStatus(t, store, "b1", entity.BroadcastPaused)

	if b.Cursor != 3 {
		t.Errorf("auto-pause cursor = %d, want 3", b.Cursor)
	}
	if b.Failed != 3 {
		t.Errorf("failed = %d, want 3", b.Failed)
	}
}

func TestProcessorLifecycleGuards(t *testing.T) {
	store := newFakeStore(
		entity.Broadcast{ID: "done", Status: entity.BroadcastCompleted},
		entity.Broadcast{ID: "draft", Status: entity.BroadcastDraft},
	)
	p := NewProcessor(store, &fakeAudience{}, newCountingSender(), fastConfig(), testLogger())
	defer p.Shutdown()
	ctx := context.Background()

	if err := p.Start(ctx, "done"); err == nil {
		t.Error("Start() on completed broadcast succeeded")
	}
	if err := p.Pause(ctx, "draft"); err == nil {
		t.Error("Pause() on draft succeeded")
	}
	if err := p.Resume(ctx, "draft"); err == nil {
		t.Error("Resume() on draft succeeded")
	}
	if err := p.Cancel(ctx, "done"); err == nil {
		t.Error("Cancel() on completed broadcast succeeded")
	}
	if err := p.Start(ctx, "ghost"); err == nil {
		t.Error("Start() on unknown id succeeded")
	}
}

func TestProcessorCancelMidRunStaysCancelled(t *testing.T) {
	store := newFakeStore(entity.Broadcast{ID: "b1", BotID: "bot", Status: entity.BroadcastDraft})
	sender := newCountingSender()

	p := NewProcessor(store, &fakeAudience{rcpts: recipients(6)}, sender, fastConfig(), testLogger())
	defer p.Shutdown()

	// cancel lands while the first chunk is in flight; the chunk finishes,
	// the run must still end cancelled, not paused
	var once sync.Once
	sender.onSend = func(int64, int) {
		once.Do(func() {
			if err := p.Cancel(context.Background(), "b1"); err != nil {
				t.Errorf("Cancel() = %v", err)
			}
		})
	}

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	b := waitStatus(t, store, "b1", entity.BroadcastCancelled)

	if b.Cursor >= 6 {
		t.Errorf("cursor = %d, want a partial run", b.Cursor)
	}
	for id := int64(3); id <= 6; id++ {
		if got := sender.attemptCount(id); got != 0 {
			t.Errorf("chat %d attempted %d times after cancel", id, got)
		}
	}

	// the drained run must not revert the terminal status
	p.Shutdown()
	b, _ = store.GetBroadcast(context.Background(), "b1")
	if b.Status != entity.BroadcastCancelled {
		t.Fatalf("status after drain = %s, want cancelled", b.Status)
	}
	if err := p.Resume(context.Background(), "b1"); err == nil {
		t.Error("Resume() succeeded on a cancelled broadcast")
	}
}

func TestProcessorCancelIsTerminal(t *testing.T) {
	store := newFakeStore(entity.Broadcast{ID: "b1", BotID: "bot", Status: entity.BroadcastDraft})
	sender := newCountingSender()

	p := NewProcessor(store, &fakeAudience{rcpts: recipients(4)}, sender, fastConfig(), testLogger())
	defer p.Shutdown()

	if err := p.Start(context.Background(), "b1"); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitStatus(t, store, "b1", entity.BroadcastCompleted)

	if err := p.Cancel(context.Background(), "b1"); err == nil {
		t.Error("Cancel() after completion succeeded")
	}

	store.mu.Lock()
	b := store.broadcasts["b1"]
	b.Status = entity.BroadcastPaused
	store.broadcasts["b1"] = b
	store.mu.Unlock()

	if err := p.Cancel(context.Background(), "b1"); err != nil {
		t.Fatalf("Cancel() = %v", err)
	}
	got, _ := store.GetBroadcast(context.Background(), "b1")
	if got.Status != entity.BroadcastCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if err := p.Resume(context.Background(), "b1"); err == nil {
		t.Error("Resume() after cancel succeeded")
	}
}
