package funnel

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"funnelgram/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStates struct {
	mu sync.Mutex
	m  map[string]entity.ConversationState
}

func newFakeStates() *fakeStates {
	return &fakeStates{m: make(map[string]entity.ConversationState)}
}

func (f *fakeStates) LoadState(_ context.Context, botID string, userID int64) (*entity.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.m[lockKey(botID, userID)]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

func (f *fakeStates) SaveState(_ context.Context, state *entity.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[lockKey(state.BotID, state.UserID)] = *state
	return nil
}

func (f *fakeStates) DeleteState(_ context.Context, botID string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, lockKey(botID, userID))
	return nil
}

type fakeFunnels struct {
	funnels []entity.Funnel
}

func (f *fakeFunnels) GetFunnel(_ context.Context, id string) (*entity.Funnel, error) {
	for i := range f.funnels {
		if f.funnels[i].ID == id {
			return &f.funnels[i], nil
		}
	}
	return nil, nil
}

func (f *fakeFunnels) ActiveFunnels(_ context.Context, botID string) ([]entity.Funnel, error) {
	var out []entity.Funnel
	for _, fn := range f.funnels {
		if fn.BotID == botID && fn.Active {
			out = append(out, fn)
		}
	}
	return out, nil
}

type fakeTriggers struct {
	triggers []entity.Trigger
}

func (f *fakeTriggers) ActiveTriggers(_ context.Context, botID string) ([]entity.Trigger, error) {
	var out []entity.Trigger
	for _, t := range f.triggers {
		if t.BotID == botID && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSubs struct {
	mu sync.Mutex
	m  map[string]entity.Subscriber
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{m: make(map[string]entity.Subscriber)}
}

func (f *fakeSubs) GetSubscriber(_ context.Context, botID string, userID int64) (*entity.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.m[lockKey(botID, userID)]
	if !ok {
		return nil, nil
	}
	cp := sub
	return &cp, nil
}

func (f *fakeSubs) SaveSubscriber(_ context.Context, sub *entity.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[lockKey(sub.BotID, sub.TelegramID)] = *sub
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []entity.OutboundMessage
	fail error
}

func (f *fakeSender) Send(_ context.Context, msg *entity.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, *msg)
	return nil
}

func (f *fakeSender) messages() []entity.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) lastText() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content.Text
}

type fakeMembership struct {
	member bool
	err    error
}

func (f *fakeMembership) IsMember(_ context.Context, _ string, _ int64) (bool, error) {
	return f.member, f.err
}

type fakeActions struct {
	mu    sync.Mutex
	calls []entity.ActionType
	err   error
}

func (f *fakeActions) Run(_ context.Context, action entity.ActionType, _ map[string]any,
	_ *entity.ConversationState, _ *entity.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return f.err
}
