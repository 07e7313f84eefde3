package funnel

import (
	"context"
	"testing"
	"time"

	"funnelgram/entity"
)

type engineFixture struct {
	engine  *Engine
	states  *fakeStates
	funnels *fakeFunnels
	subs    *fakeSubs
	sender  *fakeSender
}

func newEngineFixture(t *testing.T, funnels []entity.Funnel, triggers []entity.Trigger, opts Options) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		states:  newFakeStates(),
		funnels: &fakeFunnels{funnels: funnels},
		subs:    newFakeSubs(),
		sender:  &fakeSender{},
	}
	log := testLogger()
	matcher := NewMatcher(&fakeTriggers{triggers: triggers}, fx.funnels, log)
	executor := NewExecutor(fx.subs, &fakeMembership{}, &fakeActions{}, time.Second, log)
	fx.engine = NewEngine(fx.states, fx.funnels, fx.subs, matcher, executor, fx.sender, opts, log)
	t.Cleanup(fx.engine.Stop)
	return fx
}

func (fx *engineFixture) state(t *testing.T) *entity.ConversationState {
	t.Helper()
	st, err := fx.states.LoadState(context.Background(), "bot", 7)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if st == nil {
		t.Fatal("no state persisted")
	}
	return st
}

func leadMagnetFunnel() entity.Funnel {
	return entity.Funnel{
		ID: "f1", BotID: "bot", Name: "lead magnet", Active: true,
		FirstStepID:       "welcome",
		CompletionMessage: "Thanks, {name}!",
		Steps: []entity.Step{
			{ID: "welcome", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "Welcome!"}, NextStepID: "ask"},
			{ID: "ask", Type: entity.StepInput, InputKind: entity.InputText, InputField: "name",
				Content: &entity.Content{Type: "text", Text: "What is your name?"}},
		},
	}
}

func startTrigger() entity.Trigger {
	return entity.Trigger{
		ID: "t1", BotID: "bot", Type: entity.TriggerCommand, Mode: entity.MatchExact,
		Pattern: "/start", FunnelID: "f1", Active: true,
	}
}

func msgEvent(id int64, text string) *entity.InboundEvent {
	return &entity.InboundEvent{
		ID: id, BotID: "bot", UserID: 7, ChatID: 7,
		Type: entity.EventMessage, Text: text, FirstName: "Ann",
	}
}

func cmdEvent(id int64, text string) *entity.InboundEvent {
	ev := msgEvent(id, text)
	ev.Type = entity.EventCommand
	return ev
}

func TestEngineLeadMagnetFlow(t *testing.T) {
	fx := newEngineFixture(t, []entity.Funnel{leadMagnetFunnel()}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	if err := fx.engine.HandleEvent(ctx, cmdEvent(1, "/start")); err != nil {
		t.Fatalf("HandleEvent(/start) = %v", err)
	}
	msgs := fx.sender.messages()
	if len(msgs) != 2 || msgs[0].Content.Text != "Welcome!" || msgs[1].Content.Text != "What is your name?" {
		t.Fatalf("entry sent %+v", msgs)
	}
	st := fx.state(t)
	if st.FunnelID != "f1" || st.StepID != "ask" || st.Waiting != entity.WaitingInput {
		t.Fatalf("state after entry = %+v", st)
	}

	if err := fx.engine.HandleEvent(ctx, msgEvent(2, "Bob")); err != nil {
		t.Fatalf("HandleEvent(answer) = %v", err)
	}
	if got := fx.sender.lastText(); got != "Thanks, Bob!" {
		t.Errorf("completion message = %q, want rendered thanks", got)
	}
	st = fx.state(t)
	if st.InFunnel() || st.Waiting != entity.WaitingNone {
		t.Errorf("state not reset after completion: %+v", st)
	}

	sub, _ := fx.subs.GetSubscriber(ctx, "bot", 7)
	if sub == nil || sub.FirstName != "Ann" {
		t.Errorf("subscriber not upserted: %+v", sub)
	}
}

func TestEngineRestartCommandPreempts(t *testing.T) {
	fx := newEngineFixture(t, []entity.Funnel{leadMagnetFunnel()}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, cmdEvent(1, "/start"))
	st := fx.state(t)
	if st.Waiting != entity.WaitingInput {
		t.Fatalf("setup failed: %+v", st)
	}

	// /start while awaiting input restarts instead of being treated as the answer
	fx.engine.HandleEvent(ctx, cmdEvent(2, "/start"))
	st = fx.state(t)
	if st.StepID != "ask" || st.Waiting != entity.WaitingInput {
		t.Fatalf("restart did not re-enter: %+v", st)
	}
	if got := st.GetString("name"); got != "" {
		t.Errorf("field bag survived restart: %q", got)
	}
	if got := fx.sender.lastText(); got != "What is your name?" {
		t.Errorf("last message = %q", got)
	}
}

func TestEngineCancelCommand(t *testing.T) {
	fx := newEngineFixture(t, []entity.Funnel{leadMagnetFunnel()}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, cmdEvent(1, "/start"))
	fx.engine.HandleEvent(ctx, cmdEvent(2, "/cancel"))

	st := fx.state(t)
	if st.InFunnel() {
		t.Errorf("cancel left user in funnel: %+v", st)
	}
	if got := fx.sender.lastText(); got != "Cancelled." {
		t.Errorf("cancel reply = %q", got)
	}

	// cancel outside a funnel is silent
	before := len(fx.sender.messages())
	fx.engine.HandleEvent(ctx, cmdEvent(3, "/cancel"))
	if after := len(fx.sender.messages()); after != before {
		t.Errorf("idle cancel sent %d extra messages", after-before)
	}
}

func TestEngineDedupeReplay(t *testing.T) {
	fx := newEngineFixture(t, []entity.Funnel{leadMagnetFunnel()}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, cmdEvent(5, "/start"))
	count := len(fx.sender.messages())

	// transport redelivery of the same update is a no-op
	fx.engine.HandleEvent(ctx, cmdEvent(5, "/start"))
	if got := len(fx.sender.messages()); got != count {
		t.Errorf("replayed update produced %d extra sends", got-count)
	}
}

func TestEngineFallbackText(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, Options{FallbackText: "Try /start."})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, msgEvent(1, "hello?"))
	if got := fx.sender.lastText(); got != "Try /start." {
		t.Errorf("fallback = %q", got)
	}
}

func TestEngineStepCeiling(t *testing.T) {
	loop := entity.Funnel{
		ID: "f1", BotID: "bot", Name: "loop", Active: true, FirstStepID: "a",
		Steps: []entity.Step{
			{ID: "a", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "ping"}, NextStepID: "b"},
			{ID: "b", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "pong"}, NextStepID: "a"},
		},
	}
	fx := newEngineFixture(t, []entity.Funnel{loop}, []entity.Trigger{startTrigger()},
		Options{MaxStepsPerEvent: 6})
	ctx := context.Background()

	if err := fx.engine.HandleEvent(ctx, cmdEvent(1, "/start")); err != nil {
		t.Fatalf("HandleEvent() = %v", err)
	}
	if got := len(fx.sender.messages()); got != 6 {
		t.Errorf("cycle sent %d messages, want the 6-step ceiling", got)
	}
	st := fx.state(t)
	if st.InFunnel() {
		t.Errorf("aborted conversation still in funnel: %+v", st)
	}
}

func TestEngineDelayAndWake(t *testing.T) {
	delayed := entity.Funnel{
		ID: "f1", BotID: "bot", Name: "drip", Active: true, FirstStepID: "hello",
		Steps: []entity.Step{
			{ID: "hello", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "see you soon"}, NextStepID: "wait"},
			{ID: "wait", Type: entity.StepDelay, DelaySeconds: 3600, NextStepID: "later"},
			{ID: "later", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "welcome back"}},
		},
	}
	fx := newEngineFixture(t, []entity.Funnel{delayed}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, cmdEvent(1, "/start"))
	st := fx.state(t)
	if st.Waiting != entity.WaitingDelay || st.DelayedUntil == nil {
		t.Fatalf("delay not parked: %+v", st)
	}

	// chatter during the delay stays parked
	fx.engine.HandleEvent(ctx, msgEvent(2, "are you there?"))
	st = fx.state(t)
	if st.Waiting != entity.WaitingDelay {
		t.Fatalf("chatter unparked the delay: %+v", st)
	}

	// the wake event resumes past the delay step
	wake := &entity.InboundEvent{BotID: "bot", UserID: 7, ChatID: 7, Type: entity.EventWake}
	if err := fx.engine.HandleEvent(ctx, wake); err != nil {
		t.Fatalf("HandleEvent(wake) = %v", err)
	}
	if got := fx.sender.lastText(); got != "welcome back" {
		t.Errorf("post-delay message = %q", got)
	}
	st = fx.state(t)
	if st.InFunnel() {
		t.Errorf("terminal step left state in funnel: %+v", st)
	}

	// a stale wake after completion is ignored
	before := len(fx.sender.messages())
	fx.engine.HandleEvent(ctx, wake)
	if after := len(fx.sender.messages()); after != before {
		t.Errorf("stale wake sent messages")
	}
}

func TestEngineMemberUpdateFlipsBlocked(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, msgEvent(1, "hi"))

	blocked := true
	fx.engine.HandleEvent(ctx, &entity.InboundEvent{
		ID: 2, BotID: "bot", UserID: 7, ChatID: 7,
		Type: entity.EventMemberUpdate, Blocked: &blocked,
	})
	sub, _ := fx.subs.GetSubscriber(ctx, "bot", 7)
	if sub == nil || !sub.Blocked {
		t.Fatalf("blocked flag not set: %+v", sub)
	}

	unblocked := false
	fx.engine.HandleEvent(ctx, &entity.InboundEvent{
		ID: 3, BotID: "bot", UserID: 7, ChatID: 7,
		Type: entity.EventMemberUpdate, Blocked: &unblocked,
	})
	sub, _ = fx.subs.GetSubscriber(ctx, "bot", 7)
	if sub.Blocked {
		t.Errorf("blocked flag not cleared: %+v", sub)
	}
}

func TestEngineEventTriggerOnMemberUpdate(t *testing.T) {
	comeback := entity.Funnel{
		ID: "f2", BotID: "bot", Name: "comeback", Active: true, FirstStepID: "hi",
		Steps: []entity.Step{
			{ID: "hi", Type: entity.StepMessage,
				Content: &entity.Content{Type: "text", Text: "Welcome back!"}},
		},
	}
	onJoin := entity.Trigger{
		ID: "t2", BotID: "bot", Type: entity.TriggerEvent, Mode: entity.MatchExact,
		Pattern: "member", FunnelID: "f2", Active: true,
	}
	fx := newEngineFixture(t, []entity.Funnel{comeback, leadMagnetFunnel()},
		[]entity.Trigger{onJoin, startTrigger()}, Options{})
	ctx := context.Background()

	// unblocking the bot fires the event trigger
	unblocked := false
	join := &entity.InboundEvent{
		ID: 1, BotID: "bot", UserID: 7, ChatID: 7,
		Type: entity.EventMemberUpdate, Text: "member", Blocked: &unblocked,
	}
	if err := fx.engine.HandleEvent(ctx, join); err != nil {
		t.Fatalf("HandleEvent(member update) = %v", err)
	}
	if got := fx.sender.lastText(); got != "Welcome back!" {
		t.Errorf("event trigger reply = %q", got)
	}

	// a block only flips the flag
	before := len(fx.sender.messages())
	blocked := true
	fx.engine.HandleEvent(ctx, &entity.InboundEvent{
		ID: 2, BotID: "bot", UserID: 7, ChatID: 7,
		Type: entity.EventMemberUpdate, Text: "kicked", Blocked: &blocked,
	})
	if after := len(fx.sender.messages()); after != before {
		t.Errorf("block event sent %d messages", after-before)
	}

	// a member update never interrupts an ongoing conversation
	fx.engine.HandleEvent(ctx, cmdEvent(3, "/start"))
	st := fx.state(t)
	if st.Waiting != entity.WaitingInput {
		t.Fatalf("setup failed: %+v", st)
	}
	join.ID = 4
	fx.engine.HandleEvent(ctx, join)
	st = fx.state(t)
	if st.FunnelID != "f1" || st.Waiting != entity.WaitingInput {
		t.Errorf("member update disturbed the conversation: %+v", st)
	}
}

func TestEngineFunnelVanishedMidConversation(t *testing.T) {
	fx := newEngineFixture(t, []entity.Funnel{leadMagnetFunnel()}, []entity.Trigger{startTrigger()}, Options{})
	ctx := context.Background()

	fx.engine.HandleEvent(ctx, cmdEvent(1, "/start"))
	fx.funnels.funnels = nil

	if err := fx.engine.HandleEvent(ctx, msgEvent(2, "Bob")); err != nil {
		t.Fatalf("HandleEvent() = %v, want fail-soft nil", err)
	}
	st := fx.state(t)
	if st.InFunnel() {
		t.Errorf("state still references deleted funnel: %+v", st)
	}
}
