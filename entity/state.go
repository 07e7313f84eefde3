package entity

import "time"

// Waiting is the sub-status of a conversation between engine calls.
type Waiting string

const (
	WaitingNone      Waiting = "none"
	WaitingInput     Waiting = "input"
	WaitingQuiz      Waiting = "quiz"
	WaitingSubscribe Waiting = "subscribe"
	WaitingDelay     Waiting = "delay"
)

// ConversationState is the durable per-(bot, user) record of funnel
// position and collected answers. It is created on the first matched
// trigger and reset, not deleted, when a conversation ends or restarts.
type ConversationState struct {
	BotID        string         `json:"bot_id" bson:"bot_id"`
	UserID       int64          `json:"user_id" bson:"user_id"`
	ChatID       int64          `json:"chat_id" bson:"chat_id"`
	FunnelID     string         `json:"funnel_id" bson:"funnel_id"`
	StepID       string         `json:"step_id" bson:"step_id"`
	Waiting      Waiting        `json:"waiting" bson:"waiting"`
	WaitingField string         `json:"waiting_field,omitempty" bson:"waiting_field,omitempty"`
	Fields       map[string]any `json:"fields" bson:"fields"`
	DelayedUntil *time.Time     `json:"delayed_until,omitempty" bson:"delayed_until,omitempty"`
	StartedAt    time.Time      `json:"started_at" bson:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at" bson:"updated_at"`
}

// NewConversationState creates an empty state record.
func NewConversationState(botID string, userID, chatID int64) *ConversationState {
	return &ConversationState{
		BotID:     botID,
		UserID:    userID,
		ChatID:    chatID,
		Waiting:   WaitingNone,
		Fields:    make(map[string]any),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// InFunnel reports whether the user is mid-flow.
func (s *ConversationState) InFunnel() bool {
	return s.FunnelID != ""
}

// Set stores a collected value into the field bag.
func (s *ConversationState) Set(key string, value any) {
	if s.Fields == nil {
		s.Fields = make(map[string]any)
	}
	s.Fields[key] = value
}

// GetString retrieves a string value from the field bag.
func (s *ConversationState) GetString(key string) string {
	if v, ok := s.Fields[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Reset clears funnel position and collected answers but keeps the record.
func (s *ConversationState) Reset() {
	s.FunnelID = ""
	s.StepID = ""
	s.Waiting = WaitingNone
	s.WaitingField = ""
	s.Fields = make(map[string]any)
	s.DelayedUntil = nil
	s.UpdatedAt = time.Now()
}
