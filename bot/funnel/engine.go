package funnel

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// Options tunes engine behavior; zero values fall back to defaults.
type Options struct {
	RestartCommand   string // resets any conversation and re-matches, default /start
	CancelCommand    string // aborts the conversation, default /cancel
	FallbackText     string // reply to unmatched messages, empty disables
	MaxStepsPerEvent int    // loop ceiling per inbound event, default 25
	DedupeWindow     int    // remembered update IDs per bot, default 64
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.RestartCommand == "" {
		opts.RestartCommand = "/start"
	}
	if opts.CancelCommand == "" {
		opts.CancelCommand = "/cancel"
	}
	if opts.MaxStepsPerEvent <= 0 {
		opts.MaxStepsPerEvent = 25
	}
	return opts
}

// Engine drives conversations: it matches triggers, walks the step graph and
// persists state after every event. Calls are serialized per (bot, user);
// different users proceed concurrently.
type Engine struct {
	states   StateStore
	funnels  FunnelStore
	subs     SubscriberStore
	matcher  *Matcher
	executor *Executor
	sender   Sender
	timer    *WakeTimer
	locks    *userLocks
	dedupe   *dedupeWindow
	opts     Options
	log      *slog.Logger
}

// NewEngine wires the conversation engine. The wake timer is created by the
// engine itself so delay steps resume through the same serialized path.
func NewEngine(states StateStore, funnels FunnelStore, subs SubscriberStore,
	matcher *Matcher, executor *Executor, sender Sender, opts Options, log *slog.Logger) *Engine {

	opts = opts.withDefaults()
	e := &Engine{
		states:   states,
		funnels:  funnels,
		subs:     subs,
		matcher:  matcher,
		executor: executor,
		sender:   sender,
		locks:    newUserLocks(),
		dedupe:   newDedupeWindow(opts.DedupeWindow),
		opts:     opts,
		log:      log.With(sl.Module("funnel.engine")),
	}
	e.timer = NewWakeTimer(e.onWake)
	return e
}

// Stop cancels pending delay wakeups.
func (e *Engine) Stop() {
	e.timer.Stop()
}

func lockKey(botID string, userID int64) string {
	return botID + ":" + strconv.FormatInt(userID, 10)
}

// HandleEvent processes one normalized inbound event to completion: zero or
// more outbound sends plus exactly one persisted state write.
func (e *Engine) HandleEvent(ctx context.Context, ev *entity.InboundEvent) error {
	mu := e.locks.lock(lockKey(ev.BotID, ev.UserID))
	defer mu.Unlock()

	if ev.ID != 0 && e.dedupe.remember(ev.BotID, ev.ID) {
		e.log.Debug("duplicate update skipped", slog.Int64("update_id", ev.ID))
		return nil
	}

	log := e.log.With(
		slog.String("bot_id", ev.BotID),
		slog.Int64("user_id", ev.UserID),
		slog.String("event", string(ev.Type)),
	)

	sub, err := e.upsertSubscriber(ctx, ev)
	if err != nil {
		log.Error("loading subscriber", sl.Err(err))
		return err
	}

	if ev.Type == entity.EventMemberUpdate && ev.Blocked != nil && *ev.Blocked {
		// blocked-state flip only, nothing left to converse with
		return nil
	}

	state, err := e.states.LoadState(ctx, ev.BotID, ev.UserID)
	if err != nil {
		log.Error("loading state", sl.Err(err))
		return err
	}
	if state == nil {
		state = entity.NewConversationState(ev.BotID, ev.UserID, ev.ChatID)
	}
	state.ChatID = ev.ChatID

	defer func() {
		state.UpdatedAt = time.Now()
		if saveErr := e.states.SaveState(context.WithoutCancel(ctx), state); saveErr != nil {
			log.Error("saving state", sl.Err(saveErr))
		}
	}()

	// A join or unblock may fire event triggers, but never interrupts an
	// ongoing conversation and is never treated as conversational input.
	if ev.Type == entity.EventMemberUpdate {
		if state.InFunnel() {
			return nil
		}
		return e.tryEnter(ctx, log, ev, state, sub)
	}

	// Control commands outrank everything, including awaited input.
	if ev.IsCommand() {
		switch commandOf(ev.Text) {
		case e.opts.RestartCommand:
			e.timer.Cancel(ev.BotID, ev.UserID)
			state.Reset()
			return e.tryEnter(ctx, log, ev, state, sub)
		case e.opts.CancelCommand:
			e.timer.Cancel(ev.BotID, ev.UserID)
			if state.InFunnel() {
				state.Reset()
				e.send(ctx, log, e.textMessage(state.ChatID, "Cancelled."))
			}
			return nil
		}
	}

	if state.InFunnel() {
		return e.continueFunnel(ctx, log, ev, state, sub)
	}
	return e.tryEnter(ctx, log, ev, state, sub)
}

// onWake resumes a conversation parked on a delay step.
func (e *Engine) onWake(botID string, userID, chatID int64) {
	ev := &entity.InboundEvent{
		BotID:  botID,
		UserID: userID,
		ChatID: chatID,
		Type:   entity.EventWake,
	}
	if err := e.HandleEvent(context.Background(), ev); err != nil {
		e.log.Error("delay wakeup failed",
			slog.String("bot_id", botID),
			slog.Int64("user_id", userID),
			sl.Err(err),
		)
	}
}

// tryEnter matches triggers and keyword steps for a user outside any funnel.
func (e *Engine) tryEnter(ctx context.Context, log *slog.Logger,
	ev *entity.InboundEvent, state *entity.ConversationState, sub *entity.Subscriber) error {

	if ev.Type == entity.EventWake {
		// stale wakeup after a reset, nothing to resume
		return nil
	}

	trigger, err := e.matcher.Match(ctx, ev)
	if err != nil {
		log.Error("matching triggers", sl.Err(err))
		return err
	}

	if trigger != nil {
		f, err := e.funnels.GetFunnel(ctx, trigger.FunnelID)
		if err != nil {
			log.Error("loading funnel", slog.String("funnel_id", trigger.FunnelID), sl.Err(err))
			return err
		}
		if f == nil || !f.Active {
			log.Warn("trigger points at missing or inactive funnel",
				slog.String("trigger_id", trigger.ID),
				slog.String("funnel_id", trigger.FunnelID),
			)
			return nil
		}
		entryID := f.FirstStepID
		if trigger.StepID != "" {
			entryID = trigger.StepID
		}
		log.Info("trigger fired",
			slog.String("trigger_id", trigger.ID),
			slog.String("funnel_id", f.ID),
		)
		return e.enter(ctx, log, f, entryID, state, sub, ev)
	}

	if ev.Type == entity.EventMessage {
		f, step, err := e.matcher.MatchKeywordStep(ctx, ev.BotID, ev.Text)
		if err != nil {
			log.Error("matching keyword steps", sl.Err(err))
			return err
		}
		if f != nil {
			return e.enter(ctx, log, f, step.ID, state, sub, ev)
		}
	}

	if e.opts.FallbackText != "" && (ev.Type == entity.EventMessage || ev.Type == entity.EventCommand) {
		e.send(ctx, log, e.textMessage(ev.ChatID, e.opts.FallbackText))
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, log *slog.Logger, f *entity.Funnel,
	entryID string, state *entity.ConversationState, sub *entity.Subscriber, ev *entity.InboundEvent) error {

	state.Reset()
	state.FunnelID = f.ID
	state.StepID = entryID
	// the entry event is spent on matching, steps run fresh
	return e.runSteps(ctx, log, f, state, sub, nil)
}

// continueFunnel routes an event into an ongoing conversation.
func (e *Engine) continueFunnel(ctx context.Context, log *slog.Logger,
	ev *entity.InboundEvent, state *entity.ConversationState, sub *entity.Subscriber) error {

	f, err := e.funnels.GetFunnel(ctx, state.FunnelID)
	if err != nil {
		log.Error("loading funnel", slog.String("funnel_id", state.FunnelID), sl.Err(err))
		return err
	}
	if f == nil {
		// funnel deleted mid-conversation, fail soft
		log.Warn("funnel vanished mid-conversation", slog.String("funnel_id", state.FunnelID))
		state.Reset()
		return nil
	}

	step := f.Step(state.StepID)
	if step == nil {
		log.Warn("current step vanished",
			slog.String("funnel_id", f.ID),
			slog.String("step_id", state.StepID),
		)
		state.Reset()
		return nil
	}

	switch state.Waiting {
	case entity.WaitingDelay:
		if ev.Type == entity.EventWake ||
			(state.DelayedUntil != nil && !time.Now().Before(*state.DelayedUntil)) {
			// delay elapsed, advance past the delay step
			state.Waiting = entity.WaitingNone
			state.DelayedUntil = nil
			state.StepID = step.NextStepID
			if step.NextStepID == "" {
				return e.complete(ctx, log, f, state, sub)
			}
			return e.runSteps(ctx, log, f, state, sub, nil)
		}
		// user spoke during the delay: a fresh trigger match wins, anything
		// else stays parked
		return e.interruptOrIgnore(ctx, log, ev, state, sub)

	case entity.WaitingInput, entity.WaitingQuiz, entity.WaitingSubscribe:
		if ev.Type == entity.EventWake {
			return nil
		}
		return e.runSteps(ctx, log, f, state, sub, ev)
	}

	// not waiting on anything: a mid-funnel message re-enters matching
	return e.interruptOrIgnore(ctx, log, ev, state, sub)
}

// interruptOrIgnore lets an explicit trigger match preempt an ongoing
// conversation; non-matching chatter is ignored.
func (e *Engine) interruptOrIgnore(ctx context.Context, log *slog.Logger,
	ev *entity.InboundEvent, state *entity.ConversationState, sub *entity.Subscriber) error {

	trigger, err := e.matcher.Match(ctx, ev)
	if err != nil {
		log.Error("matching triggers", sl.Err(err))
		return err
	}
	if trigger == nil {
		return nil
	}
	e.timer.Cancel(ev.BotID, ev.UserID)
	return e.tryEnter(ctx, log, ev, state, sub)
}

// runSteps executes the graph from the current step. ev is consumed by the
// first step only; after any advancement steps run without an event.
func (e *Engine) runSteps(ctx context.Context, log *slog.Logger, f *entity.Funnel,
	state *entity.ConversationState, sub *entity.Subscriber, ev *entity.InboundEvent) error {

	for i := 0; i < e.opts.MaxStepsPerEvent; i++ {
		step := f.Step(state.StepID)
		if step == nil {
			log.Warn("dangling step reference",
				slog.String("funnel_id", f.ID),
				slog.String("step_id", state.StepID),
			)
			return e.complete(ctx, log, f, state, sub)
		}

		res := e.executor.Execute(ctx, f, step, state, sub, ev)
		ev = nil

		for i := range res.Outbound {
			e.send(ctx, log, &res.Outbound[i])
		}

		switch {
		case res.Terminate:
			return e.complete(ctx, log, f, state, sub)

		case res.Await != "":
			state.Waiting = res.Await
			return nil

		case res.Delay > 0:
			until := time.Now().Add(res.Delay)
			state.Waiting = entity.WaitingDelay
			state.DelayedUntil = &until
			e.timer.Schedule(state.BotID, state.UserID, state.ChatID, res.Delay)
			return nil

		default:
			state.StepID = res.Next
			state.Waiting = entity.WaitingNone
		}
	}

	log.Error("step ceiling reached, conversation aborted",
		slog.String("funnel_id", f.ID),
		slog.String("step_id", state.StepID),
	)
	state.Reset()
	return nil
}

func (e *Engine) complete(ctx context.Context, log *slog.Logger, f *entity.Funnel,
	state *entity.ConversationState, sub *entity.Subscriber) error {

	log.Info("funnel completed", slog.String("funnel_id", f.ID))
	if f.CompletionMessage != "" {
		e.send(ctx, log, e.textMessage(state.ChatID,
			renderTemplate(f.CompletionMessage, state, sub)))
	}
	state.Reset()
	return nil
}

func (e *Engine) send(ctx context.Context, log *slog.Logger, msg *entity.OutboundMessage) {
	if err := e.sender.Send(ctx, msg); err != nil {
		log.Warn("sending message", slog.Int64("chat_id", msg.ChatID), sl.Err(err))
	}
}

func (e *Engine) textMessage(chatID int64, text string) *entity.OutboundMessage {
	return &entity.OutboundMessage{
		ChatID:  chatID,
		Content: entity.Content{Type: "text", Text: text},
	}
}

// upsertSubscriber refreshes the subscriber profile from the event and
// creates the record on first contact.
func (e *Engine) upsertSubscriber(ctx context.Context, ev *entity.InboundEvent) (*entity.Subscriber, error) {
	sub, err := e.subs.GetSubscriber(ctx, ev.BotID, ev.UserID)
	if err != nil {
		return nil, err
	}

	changed := false
	if sub == nil {
		sub = &entity.Subscriber{
			ID:         uuid.NewString(),
			BotID:      ev.BotID,
			TelegramID: ev.UserID,
			ChatID:     ev.ChatID,
			CreatedAt:  time.Now(),
		}
		changed = true
	}
	if ev.FirstName != "" && sub.FirstName != ev.FirstName {
		sub.FirstName = ev.FirstName
		changed = true
	}
	if ev.LastName != sub.LastName && (ev.LastName != "" || ev.FirstName != "") {
		sub.LastName = ev.LastName
		changed = true
	}
	if ev.Username != "" && sub.Username != ev.Username {
		sub.Username = ev.Username
		changed = true
	}
	if ev.Blocked != nil && sub.Blocked != *ev.Blocked {
		sub.Blocked = *ev.Blocked
		changed = true
	}
	if ev.Type != entity.EventWake && ev.Type != entity.EventMemberUpdate {
		sub.LastActiveAt = time.Now()
		changed = true
	}

	if changed {
		if err := e.subs.SaveSubscriber(ctx, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func commandOf(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' || text[i] == '@' {
			return text[:i]
		}
	}
	return text
}
