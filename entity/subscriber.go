package entity

import (
	"slices"
	"strings"
	"time"
)

// Subscriber is an end user of a bot: identity, contact details collected by
// funnels, the tag set used for audience filtering, and the blocked flag
// maintained from chat-membership updates.
type Subscriber struct {
	ID           string    `json:"id" bson:"id"`
	BotID        string    `json:"bot_id" bson:"bot_id"`
	TelegramID   int64     `json:"telegram_id" bson:"telegram_id"`
	ChatID       int64     `json:"chat_id" bson:"chat_id"`
	FirstName    string    `json:"first_name" bson:"first_name"`
	LastName     string    `json:"last_name" bson:"last_name"`
	Username     string    `json:"username" bson:"username"`
	Phone        string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Email        string    `json:"email,omitempty" bson:"email,omitempty"`
	Tags         []string  `json:"tags" bson:"tags"`
	Blocked      bool      `json:"blocked" bson:"blocked"`
	LastActiveAt time.Time `json:"last_active_at" bson:"last_active_at"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// FullName joins first and last name.
func (s *Subscriber) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// HasTag reports tag membership.
func (s *Subscriber) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// AddTags adds tags idempotently; adding an existing tag is a no-op.
// It reports whether the tag set changed.
func (s *Subscriber) AddTags(tags []string) bool {
	changed := false
	for _, t := range tags {
		if !s.HasTag(t) {
			s.Tags = append(s.Tags, t)
			changed = true
		}
	}
	return changed
}

// RemoveTags removes tags idempotently; removing an absent tag is a no-op.
// It reports whether the tag set changed.
func (s *Subscriber) RemoveTags(tags []string) bool {
	before := len(s.Tags)
	s.Tags = slices.DeleteFunc(s.Tags, func(t string) bool {
		return slices.Contains(tags, t)
	})
	return len(s.Tags) != before
}
