package entity

import (
	"fmt"
	"time"
)

// StepType discriminates the step variants of a funnel graph.
type StepType string

const (
	StepMessage        StepType = "message"
	StepInput          StepType = "input"
	StepCondition      StepType = "condition"
	StepAction         StepType = "action"
	StepDelay          StepType = "delay"
	StepSubscribeCheck StepType = "subscribe_check"
	StepQuiz           StepType = "quiz"
	StepABTest         StepType = "ab_test"
	StepTag            StepType = "tag"
	StepTriggerKeyword StepType = "trigger_keyword"
)

// StepTypes lists every known variant, used by authoring validation.
var StepTypes = []StepType{
	StepMessage, StepInput, StepCondition, StepAction, StepDelay,
	StepSubscribeCheck, StepQuiz, StepABTest, StepTag, StepTriggerKeyword,
}

// InputKind is the expected payload of an Input step.
type InputKind string

const (
	InputText     InputKind = "text"
	InputNumber   InputKind = "number"
	InputPhone    InputKind = "phone"
	InputEmail    InputKind = "email"
	InputPhoto    InputKind = "photo"
	InputLocation InputKind = "location"
	InputAny      InputKind = "any"
)

// ActionType names the external side effect an Action step invokes.
type ActionType string

const (
	ActionCreateLead ActionType = "create_lead"
	ActionUpdateUser ActionType = "update_user"
	ActionHandoff    ActionType = "handoff"
	ActionNotify     ActionType = "notify"
	ActionWebhook    ActionType = "webhook"
)

// Content is the message payload of a step or broadcast.
type Content struct {
	Type    string `json:"type" bson:"type"` // text, photo, video, document
	Text    string `json:"text" bson:"text"`
	Caption string `json:"caption,omitempty" bson:"caption,omitempty"`
	FileID  string `json:"file_id,omitempty" bson:"file_id,omitempty"`
}

// Validation constrains Input step values beyond the kind check.
type Validation struct {
	Min          *float64 `json:"min,omitempty" bson:"min,omitempty"`
	Max          *float64 `json:"max,omitempty" bson:"max,omitempty"`
	MinLength    int      `json:"min_length,omitempty" bson:"min_length,omitempty"`
	MaxLength    int      `json:"max_length,omitempty" bson:"max_length,omitempty"`
	Pattern      string   `json:"pattern,omitempty" bson:"pattern,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// Condition is a boolean test over the collected field bag.
type Condition struct {
	Field    string `json:"field" bson:"field"`
	Operator string `json:"operator" bson:"operator"`
	Value    string `json:"value" bson:"value"`
}

// QuizOption is one selectable answer. Key is the stable identifier carried
// in callback data; Label may repeat or be localized.
type QuizOption struct {
	Key        string `json:"key" bson:"key"`
	Label      string `json:"label" bson:"label"`
	NextStepID string `json:"next_step_id" bson:"next_step_id"`
}

// Quiz is the config of a quiz step.
type Quiz struct {
	Question string       `json:"question" bson:"question"`
	Options  []QuizOption `json:"options" bson:"options"`
	SaveTo   string       `json:"save_to,omitempty" bson:"save_to,omitempty"`
}

// ABVariant is one weighted branch of an A/B test step.
type ABVariant struct {
	Name       string `json:"name" bson:"name"`
	Percent    int    `json:"percent" bson:"percent"`
	NextStepID string `json:"next_step_id" bson:"next_step_id"`
}

// ABTest is the config of an A/B test step. Percents must sum to 100.
type ABTest struct {
	Variants []ABVariant `json:"variants" bson:"variants"`
}

// TagOp adds or removes tags on the subscriber.
type TagOp struct {
	Action string   `json:"action" bson:"action"` // add or remove
	Tags   []string `json:"tags" bson:"tags"`
}

// SubscribeGate is the config of a subscribe_check step. Channel is the
// chat identifier used for the membership call; ChannelURL, when set, is the
// join link shown on the gate button (for private channels or numeric IDs).
type SubscribeGate struct {
	Channel              string `json:"channel" bson:"channel"`
	ChannelURL           string `json:"channel_url,omitempty" bson:"channel_url,omitempty"`
	NotSubscribedMessage string `json:"not_subscribed_message,omitempty" bson:"not_subscribed_message,omitempty"`
	SubscribeButtonText  string `json:"subscribe_button_text,omitempty" bson:"subscribe_button_text,omitempty"`
}

// KeywordTrigger marks a passive trigger_keyword step. It is never reached
// by normal advancement; the matcher scans funnels for it.
type KeywordTrigger struct {
	Keywords    []string `json:"keywords" bson:"keywords"`
	MatchType   string   `json:"match_type" bson:"match_type"` // exact, contains, starts_with, ends_with, regex
	AllMessages bool     `json:"all_messages" bson:"all_messages"`
}

// Step is one node of a funnel graph. The Type field selects which of the
// per-variant config blocks is meaningful; edges are step identifiers, never
// step objects, so converging paths are fine.
type Step struct {
	ID   string   `json:"id" bson:"id"`
	Name string   `json:"name" bson:"name"`
	Type StepType `json:"step_type" bson:"step_type"`

	Content  *Content  `json:"content,omitempty" bson:"content,omitempty"`
	Keyboard *Keyboard `json:"keyboard,omitempty" bson:"keyboard,omitempty"`

	// input
	InputKind  InputKind   `json:"input_kind,omitempty" bson:"input_kind,omitempty"`
	InputField string      `json:"input_field,omitempty" bson:"input_field,omitempty"`
	Validation *Validation `json:"validation,omitempty" bson:"validation,omitempty"`

	// condition
	Condition   *Condition `json:"condition,omitempty" bson:"condition,omitempty"`
	TrueStepID  string     `json:"true_step_id,omitempty" bson:"true_step_id,omitempty"`
	FalseStepID string     `json:"false_step_id,omitempty" bson:"false_step_id,omitempty"`

	// action
	ActionType   ActionType     `json:"action_type,omitempty" bson:"action_type,omitempty"`
	ActionConfig map[string]any `json:"action_config,omitempty" bson:"action_config,omitempty"`

	// delay
	DelaySeconds int64 `json:"delay_seconds,omitempty" bson:"delay_seconds,omitempty"`

	// subscribe_check
	Subscribe      *SubscribeGate `json:"subscribe,omitempty" bson:"subscribe,omitempty"`
	SubTrueStepID  string         `json:"sub_true_step_id,omitempty" bson:"sub_true_step_id,omitempty"`
	SubFalseStepID string         `json:"sub_false_step_id,omitempty" bson:"sub_false_step_id,omitempty"`

	Quiz    *Quiz           `json:"quiz,omitempty" bson:"quiz,omitempty"`
	ABTest  *ABTest         `json:"ab_test,omitempty" bson:"ab_test,omitempty"`
	Tag     *TagOp          `json:"tag,omitempty" bson:"tag,omitempty"`
	Trigger *KeywordTrigger `json:"trigger,omitempty" bson:"trigger,omitempty"`

	NextStepID string `json:"next_step_id,omitempty" bson:"next_step_id,omitempty"`
	Order      int    `json:"order" bson:"order"`
}

// Delay returns the configured suspension duration of a delay step.
func (s *Step) Delay() time.Duration {
	return time.Duration(s.DelaySeconds) * time.Second
}

// Edges returns every outgoing step reference of this step. Empty strings
// are omitted; an empty result on a non-branching step means terminal.
func (s *Step) Edges() []string {
	var edges []string
	add := func(id string) {
		if id != "" {
			edges = append(edges, id)
		}
	}
	switch s.Type {
	case StepCondition:
		add(s.TrueStepID)
		add(s.FalseStepID)
	case StepSubscribeCheck:
		add(s.SubTrueStepID)
		add(s.SubFalseStepID)
	case StepQuiz:
		if s.Quiz != nil {
			for _, o := range s.Quiz.Options {
				add(o.NextStepID)
			}
		}
	case StepABTest:
		if s.ABTest != nil {
			for _, v := range s.ABTest.Variants {
				add(v.NextStepID)
			}
		}
	default:
		add(s.NextStepID)
	}
	return edges
}

// Funnel is a named directed graph of steps. Steps are embedded so that a
// bulk step replace is a single document write.
type Funnel struct {
	ID                string    `json:"id" bson:"id"`
	BotID             string    `json:"bot_id" bson:"bot_id"`
	Name              string    `json:"name" bson:"name"`
	FirstStepID       string    `json:"first_step_id" bson:"first_step_id"`
	CompletionMessage string    `json:"completion_message,omitempty" bson:"completion_message,omitempty"`
	Active            bool      `json:"active" bson:"active"`
	Steps             []Step    `json:"steps" bson:"steps"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}

// Step looks up a step by identifier, nil when absent.
func (f *Funnel) Step(id string) *Step {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i]
		}
	}
	return nil
}

// Validate checks the graph at authoring/activation time so the engine never
// meets a dangling reference or malformed variant config at runtime.
func (f *Funnel) Validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("funnel %q has no steps", f.Name)
	}
	if f.FirstStepID == "" {
		return fmt.Errorf("funnel %q has no entry step", f.Name)
	}
	ids := make(map[string]bool, len(f.Steps))
	for i := range f.Steps {
		s := &f.Steps[i]
		if s.ID == "" {
			return fmt.Errorf("step %q has no identifier", s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate step identifier %q", s.ID)
		}
		ids[s.ID] = true
	}
	if !ids[f.FirstStepID] {
		return fmt.Errorf("entry step %q does not exist", f.FirstStepID)
	}
	for i := range f.Steps {
		s := &f.Steps[i]
		if err := s.validateConfig(); err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
		for _, edge := range s.Edges() {
			if !ids[edge] {
				return fmt.Errorf("step %q references missing step %q", s.Name, edge)
			}
		}
	}
	return nil
}

func (s *Step) validateConfig() error {
	switch s.Type {
	case StepMessage:
		if s.Content == nil {
			return fmt.Errorf("message step has no content")
		}
	case StepInput:
		if s.InputField == "" {
			return fmt.Errorf("input step has no target field")
		}
		if s.InputKind == "" {
			return fmt.Errorf("input step has no input kind")
		}
	case StepCondition:
		if s.Condition == nil || s.Condition.Operator == "" {
			return fmt.Errorf("condition step has no condition")
		}
	case StepAction:
		if s.ActionType == "" {
			return fmt.Errorf("action step has no action type")
		}
	case StepDelay:
		if s.DelaySeconds <= 0 {
			return fmt.Errorf("delay step needs a positive duration")
		}
	case StepSubscribeCheck:
		if s.Subscribe == nil || s.Subscribe.Channel == "" {
			return fmt.Errorf("subscribe check step has no channel")
		}
	case StepQuiz:
		if s.Quiz == nil || len(s.Quiz.Options) == 0 {
			return fmt.Errorf("quiz step has no options")
		}
		keys := make(map[string]bool, len(s.Quiz.Options))
		for _, o := range s.Quiz.Options {
			if o.Key == "" {
				return fmt.Errorf("quiz option %q has no key", o.Label)
			}
			if keys[o.Key] {
				return fmt.Errorf("duplicate quiz option key %q", o.Key)
			}
			keys[o.Key] = true
		}
	case StepABTest:
		if s.ABTest == nil || len(s.ABTest.Variants) == 0 {
			return fmt.Errorf("ab test step has no variants")
		}
		total := 0
		for _, v := range s.ABTest.Variants {
			if v.Percent <= 0 {
				return fmt.Errorf("ab variant %q has non-positive weight", v.Name)
			}
			total += v.Percent
		}
		if total != 100 {
			return fmt.Errorf("ab variant weights sum to %d, want 100", total)
		}
	case StepTag:
		if s.Tag == nil || len(s.Tag.Tags) == 0 {
			return fmt.Errorf("tag step has no tags")
		}
		if s.Tag.Action != "add" && s.Tag.Action != "remove" {
			return fmt.Errorf("tag step has unknown action %q", s.Tag.Action)
		}
	case StepTriggerKeyword:
		if s.Trigger == nil || (len(s.Trigger.Keywords) == 0 && !s.Trigger.AllMessages) {
			return fmt.Errorf("trigger keyword step has no keywords")
		}
	default:
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	return nil
}
