package funnel

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"funnelgram/bot/ui"
	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// Callback data prefixes understood by the executor.
const (
	quizCallbackPrefix     = "quiz:"
	subcheckCallbackPrefix = "subcheck:"
)

const defaultValidationError = "That does not look right. Please try again."

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]{7,20}$`)

// ExecResult is the outcome of executing one step: outbound actions, the
// control decision, and any collected-field mutation already applied to the
// passed-in state.
type ExecResult struct {
	Outbound  []entity.OutboundMessage
	Next      string         // advance to this step
	Await     entity.Waiting // wait for external input at the current step
	Delay     time.Duration  // suspend, wake after this duration
	Terminate bool
}

func advanceTo(next string) ExecResult {
	if next == "" {
		return ExecResult{Terminate: true}
	}
	return ExecResult{Next: next}
}

// Executor runs one step against the conversation state. One method per
// variant; the switch in Execute is the single dispatch point.
type Executor struct {
	subs        SubscriberStore
	membership  Membership
	actions     ActionRunner
	validate    *validator.Validate
	callTimeout time.Duration
	log         *slog.Logger
}

// NewExecutor creates a step executor. callTimeout bounds every external
// capability call so the engine never parks the per-user lock on a hung
// collaborator.
func NewExecutor(subs SubscriberStore, membership Membership, actions ActionRunner,
	callTimeout time.Duration, log *slog.Logger) *Executor {
	return &Executor{
		subs:        subs,
		membership:  membership,
		actions:     actions,
		validate:    validator.New(),
		callTimeout: callTimeout,
		log:         log.With(sl.Module("funnel.executor")),
	}
}

// Execute runs the step. ev is non-nil only when the step is consuming the
// inbound event (the awaited Input/Quiz/SubscribeCheck step); steps entered
// by advancement receive nil.
func (x *Executor) Execute(ctx context.Context, f *entity.Funnel, s *entity.Step,
	state *entity.ConversationState, sub *entity.Subscriber, ev *entity.InboundEvent) ExecResult {

	switch s.Type {
	case entity.StepMessage:
		return x.execMessage(s, state, sub)
	case entity.StepInput:
		return x.execInput(s, state, sub, ev)
	case entity.StepCondition:
		return x.execCondition(s, state, sub)
	case entity.StepAction:
		return x.execAction(ctx, s, state, sub)
	case entity.StepDelay:
		return ExecResult{Delay: s.Delay()}
	case entity.StepSubscribeCheck:
		return x.execSubscribeCheck(ctx, s, state, sub, ev)
	case entity.StepQuiz:
		return x.execQuiz(s, state, sub, ev)
	case entity.StepABTest:
		return x.execABTest(s, state, sub)
	case entity.StepTag:
		return x.execTag(ctx, s, state, sub)
	case entity.StepTriggerKeyword:
		// passive entry marker, fall through to its next step
		return advanceTo(s.NextStepID)
	}
	// Unknown variant can only come from a storage-level corruption; fail
	// soft like a deleted step.
	x.log.Error("unknown step type", slog.String("step_id", s.ID), slog.String("type", string(s.Type)))
	return ExecResult{Terminate: true}
}

func (x *Executor) execMessage(s *entity.Step, state *entity.ConversationState, sub *entity.Subscriber) ExecResult {
	res := advanceTo(s.NextStepID)
	res.Outbound = []entity.OutboundMessage{x.render(s.Content, s.Keyboard, state, sub)}
	return res
}

func (x *Executor) execInput(s *entity.Step, state *entity.ConversationState,
	sub *entity.Subscriber, ev *entity.InboundEvent) ExecResult {

	if ev == nil {
		// entering the step: prompt and wait
		res := ExecResult{Await: entity.WaitingInput}
		if s.Content != nil {
			kb := s.Keyboard
			if kb == nil && s.InputKind == entity.InputPhone {
				kb = ui.ContactRequestKeyboard("Share phone number")
			}
			res.Outbound = []entity.OutboundMessage{x.render(s.Content, kb, state, sub)}
		}
		return res
	}

	value, ok := extractInput(s.InputKind, ev)
	if ok {
		ok = validateInput(x.validate, s, value)
	}
	if !ok {
		// user-correctable: re-prompt, never mutate the bag, never advance
		return ExecResult{
			Await:    entity.WaitingInput,
			Outbound: []entity.OutboundMessage{x.text(state.ChatID, validationError(s))},
		}
	}

	state.Set(s.InputField, value)
	if s.InputKind == entity.InputPhone && ev.Contact != nil {
		sub.Phone = ev.Contact.Phone
		x.saveSubscriber(sub)
	}
	if s.InputKind == entity.InputEmail {
		if str, isStr := value.(string); isStr {
			sub.Email = str
			x.saveSubscriber(sub)
		}
	}
	return advanceTo(s.NextStepID)
}

func (x *Executor) execCondition(s *entity.Step, state *entity.ConversationState, sub *entity.Subscriber) ExecResult {
	if evalCondition(s.Condition, state, sub) {
		return advanceTo(s.TrueStepID)
	}
	return advanceTo(s.FalseStepID)
}

func (x *Executor) execAction(ctx context.Context, s *entity.Step,
	state *entity.ConversationState, sub *entity.Subscriber) ExecResult {

	if x.actions != nil {
		callCtx, cancel := context.WithTimeout(ctx, x.callTimeout)
		err := x.actions.Run(callCtx, s.ActionType, s.ActionConfig, state, sub)
		cancel()
		if err != nil {
			// side effect, not a gate: log and advance anyway
			x.log.Warn("action failed",
				slog.String("step_id", s.ID),
				slog.String("action", string(s.ActionType)),
				sl.Err(err),
			)
		}
	}
	return advanceTo(s.NextStepID)
}

func (x *Executor) execSubscribeCheck(ctx context.Context, s *entity.Step,
	state *entity.ConversationState, sub *entity.Subscriber, ev *entity.InboundEvent) ExecResult {

	// A recheck button press re-runs the gate for the same step; anything
	// else while waiting re-renders the gate prompt.
	if ev != nil && ev.Type == entity.EventCallback &&
		ev.CallbackData != subcheckCallbackPrefix+s.ID && state.Waiting == entity.WaitingSubscribe {
		return x.subscribeGatePrompt(s, state, sub)
	}

	member := false
	if x.membership != nil {
		callCtx, cancel := context.WithTimeout(ctx, x.callTimeout)
		var err error
		member, err = x.membership.IsMember(callCtx, s.Subscribe.Channel, state.UserID)
		cancel()
		if err != nil {
			// the capability's failure path is the false branch, not an
			// engine exception
			x.log.Warn("subscribe check failed",
				slog.String("step_id", s.ID),
				slog.String("channel", s.Subscribe.Channel),
				sl.Err(err),
			)
			member = false
		}
	}

	if member {
		return advanceTo(s.SubTrueStepID)
	}
	if s.SubFalseStepID != "" {
		return advanceTo(s.SubFalseStepID)
	}
	return x.subscribeGatePrompt(s, state, sub)
}

// subscribeGatePrompt sends the join prompt with a recheck button and holds
// the conversation at the gate.
func (x *Executor) subscribeGatePrompt(s *entity.Step, state *entity.ConversationState, sub *entity.Subscriber) ExecResult {
	gate := s.Subscribe
	message := gate.NotSubscribedMessage
	if message == "" {
		message = "Please join the channel to continue."
	}
	buttonText := gate.SubscribeButtonText
	if buttonText == "" {
		buttonText = "Join channel"
	}
	joinURL := gate.ChannelURL
	if joinURL == "" {
		joinURL = "https://t.me/" + strings.TrimPrefix(gate.Channel, "@")
	}
	kb := &entity.Keyboard{
		Type: "inline",
		Buttons: [][]entity.Button{
			{{Text: buttonText, URL: joinURL}},
			{{Text: "I joined ✓", CallbackData: subcheckCallbackPrefix + s.ID}},
		},
	}
	return ExecResult{
		Await: entity.WaitingSubscribe,
		Outbound: []entity.OutboundMessage{{
			ChatID:   state.ChatID,
			Content:  entity.Content{Type: "text", Text: renderTemplate(message, state, sub)},
			Keyboard: kb,
		}},
	}
}

func (x *Executor) execQuiz(s *entity.Step, state *entity.ConversationState,
	sub *entity.Subscriber, ev *entity.InboundEvent) ExecResult {

	if ev != nil && ev.Type == entity.EventCallback {
		key, forThisStep := parseQuizCallback(ev.CallbackData, s.ID)
		if forThisStep {
			for _, opt := range s.Quiz.Options {
				if opt.Key == key {
					if s.Quiz.SaveTo != "" {
						state.Set(s.Quiz.SaveTo, opt.Label)
					}
					return advanceTo(opt.NextStepID)
				}
			}
		}
		// unrecognized option key: re-render, no state change
	}

	rows := make([][]entity.Button, 0, len(s.Quiz.Options))
	for _, opt := range s.Quiz.Options {
		rows = append(rows, []entity.Button{{
			Text:         opt.Label,
			CallbackData: quizCallbackPrefix + s.ID + ":" + opt.Key,
		}})
	}
	return ExecResult{
		Await: entity.WaitingQuiz,
		Outbound: []entity.OutboundMessage{{
			ChatID:   state.ChatID,
			Content:  entity.Content{Type: "text", Text: renderTemplate(s.Quiz.Question, state, sub)},
			Keyboard: &entity.Keyboard{Type: "inline", Buttons: rows},
		}},
	}
}

func parseQuizCallback(data, stepID string) (key string, ok bool) {
	rest, found := strings.CutPrefix(data, quizCallbackPrefix)
	if !found {
		return "", false
	}
	id, key, found := strings.Cut(rest, ":")
	if !found || id != stepID {
		return "", false
	}
	return key, true
}

func (x *Executor) execABTest(s *entity.Step, state *entity.ConversationState, sub *entity.Subscriber) ExecResult {
	field := "ab_" + s.ID

	// first arrival assigns; repeats replay the stored variant
	if name := state.GetString(field); name != "" {
		for _, v := range s.ABTest.Variants {
			if v.Name == name {
				return advanceTo(v.NextStepID)
			}
		}
	}

	variant := pickVariant(s.ABTest.Variants, state.UserID, s.ID)
	state.Set(field, variant.Name)
	x.log.Debug("ab variant assigned",
		slog.Int64("user_id", state.UserID),
		slog.String("step_id", s.ID),
		slog.String("variant", variant.Name),
	)
	return advanceTo(variant.NextStepID)
}

// pickVariant deterministically maps (userID, stepID) onto the weighted
// variant list, so retries and replays land on the same branch.
func pickVariant(variants []entity.ABVariant, userID int64, stepID string) entity.ABVariant {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", userID, stepID)
	bucket := int(h.Sum64() % 100)

	cumulative := 0
	for _, v := range variants {
		cumulative += v.Percent
		if bucket < cumulative {
			return v
		}
	}
	return variants[0]
}

func (x *Executor) execTag(ctx context.Context, s *entity.Step,
	state *entity.ConversationState, sub *entity.Subscriber) ExecResult {

	var changed bool
	if s.Tag.Action == "remove" {
		changed = sub.RemoveTags(s.Tag.Tags)
	} else {
		changed = sub.AddTags(s.Tag.Tags)
	}
	if changed {
		if err := x.subs.SaveSubscriber(ctx, sub); err != nil {
			x.log.Warn("saving subscriber tags", slog.Int64("user_id", sub.TelegramID), sl.Err(err))
		}
	}
	return advanceTo(s.NextStepID)
}

func (x *Executor) render(c *entity.Content, kb *entity.Keyboard,
	state *entity.ConversationState, sub *entity.Subscriber) entity.OutboundMessage {
	content := entity.Content{Type: "text"}
	if c != nil {
		content = *c
		content.Text = renderTemplate(c.Text, state, sub)
		content.Caption = renderTemplate(c.Caption, state, sub)
	}
	return entity.OutboundMessage{ChatID: state.ChatID, Content: content, Keyboard: kb}
}

func (x *Executor) text(chatID int64, text string) entity.OutboundMessage {
	return entity.OutboundMessage{ChatID: chatID, Content: entity.Content{Type: "text", Text: text}}
}

func (x *Executor) saveSubscriber(sub *entity.Subscriber) {
	ctx, cancel := context.WithTimeout(context.Background(), x.callTimeout)
	defer cancel()
	if err := x.subs.SaveSubscriber(ctx, sub); err != nil {
		x.log.Warn("saving subscriber", slog.Int64("user_id", sub.TelegramID), sl.Err(err))
	}
}

// extractInput pulls the awaited value out of the event. The bool result is
// false when the event does not carry a usable payload of the wanted kind.
func extractInput(kind entity.InputKind, ev *entity.InboundEvent) (any, bool) {
	switch kind {
	case entity.InputText, entity.InputEmail:
		if ev.Text == "" {
			return nil, false
		}
		return ev.Text, true
	case entity.InputNumber:
		if ev.Text == "" {
			return nil, false
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(ev.Text), 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case entity.InputPhone:
		if ev.Contact != nil {
			return ev.Contact.Phone, true
		}
		if ev.Text == "" {
			return nil, false
		}
		return strings.TrimSpace(ev.Text), true
	case entity.InputPhoto:
		if ev.PhotoFileID == "" {
			return nil, false
		}
		return ev.PhotoFileID, true
	case entity.InputLocation:
		if ev.Location == nil {
			return nil, false
		}
		return map[string]any{"latitude": ev.Location.Latitude, "longitude": ev.Location.Longitude}, true
	default: // any
		switch {
		case ev.Text != "":
			return ev.Text, true
		case ev.Contact != nil:
			return ev.Contact.Phone, true
		case ev.PhotoFileID != "":
			return ev.PhotoFileID, true
		case ev.Location != nil:
			return map[string]any{"latitude": ev.Location.Latitude, "longitude": ev.Location.Longitude}, true
		}
		return nil, false
	}
}

// validateInput applies the kind check and the step's validation rule.
func validateInput(validate *validator.Validate, s *entity.Step, value any) bool {
	rule := s.Validation

	switch s.InputKind {
	case entity.InputEmail:
		str, ok := value.(string)
		if !ok || validate.Var(str, "required,email") != nil {
			return false
		}
	case entity.InputPhone:
		str, ok := value.(string)
		if !ok || !phonePattern.MatchString(str) {
			return false
		}
	case entity.InputNumber:
		n, ok := value.(float64)
		if !ok {
			return false
		}
		if rule != nil {
			if rule.Min != nil && n < *rule.Min {
				return false
			}
			if rule.Max != nil && n > *rule.Max {
				return false
			}
		}
	case entity.InputText:
		str, ok := value.(string)
		if !ok {
			return false
		}
		if rule != nil {
			if rule.MinLength > 0 && len(str) < rule.MinLength {
				return false
			}
			if rule.MaxLength > 0 && len(str) > rule.MaxLength {
				return false
			}
			if rule.Pattern != "" {
				re, err := regexp.Compile(rule.Pattern)
				if err != nil || !re.MatchString(str) {
					return false
				}
			}
		}
	}
	return true
}

func validationError(s *entity.Step) string {
	if s.Validation != nil && s.Validation.ErrorMessage != "" {
		return s.Validation.ErrorMessage
	}
	return defaultValidationError
}

// evalCondition evaluates the boolean expression of a condition step over
// the field bag, falling back to subscriber attributes.
func evalCondition(c *entity.Condition, state *entity.ConversationState, sub *entity.Subscriber) bool {
	if c == nil {
		return false
	}
	actual := fieldValue(c.Field, state, sub)

	switch c.Operator {
	case "is_set":
		return actual != nil && actual != ""
	case "is_empty":
		return actual == nil || actual == ""
	}

	actualStr := fmt.Sprintf("%v", actual)
	if actual == nil {
		actualStr = ""
	}

	switch c.Operator {
	case "equals":
		return strings.EqualFold(actualStr, c.Value)
	case "not_equals":
		return !strings.EqualFold(actualStr, c.Value)
	case "contains":
		return strings.Contains(strings.ToLower(actualStr), strings.ToLower(c.Value))
	case "not_contains":
		return !strings.Contains(strings.ToLower(actualStr), strings.ToLower(c.Value))
	case "starts_with":
		return strings.HasPrefix(strings.ToLower(actualStr), strings.ToLower(c.Value))
	case "ends_with":
		return strings.HasSuffix(strings.ToLower(actualStr), strings.ToLower(c.Value))
	case "greater_than", "less_than", "greater_or_equal", "less_or_equal":
		a, err1 := strconv.ParseFloat(strings.TrimSpace(actualStr), 64)
		b, err2 := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch c.Operator {
		case "greater_than":
			return a > b
		case "less_than":
			return a < b
		case "greater_or_equal":
			return a >= b
		default:
			return a <= b
		}
	}
	return false
}

func fieldValue(field string, state *entity.ConversationState, sub *entity.Subscriber) any {
	if v, ok := state.Fields[field]; ok {
		return v
	}
	if sub == nil {
		return nil
	}
	switch field {
	case "first_name":
		return sub.FirstName
	case "last_name":
		return sub.LastName
	case "username":
		return sub.Username
	case "phone":
		return sub.Phone
	case "email":
		return sub.Email
	case "has_tag":
		return len(sub.Tags) > 0
	case "user_id":
		return sub.TelegramID
	}
	return nil
}
