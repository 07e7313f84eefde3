package entity

import "time"

// BroadcastStatus is the campaign lifecycle:
// draft/scheduled -> sending -> {paused <-> sending} -> completed | cancelled.
type BroadcastStatus string

const (
	BroadcastDraft     BroadcastStatus = "draft"
	BroadcastScheduled BroadcastStatus = "scheduled"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastPaused    BroadcastStatus = "paused"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastCancelled BroadcastStatus = "cancelled"
)

// AudienceFilter selects broadcast recipients. The audience is snapshotted
// at send time, so membership changes mid-send neither skip nor duplicate.
type AudienceFilter struct {
	Tags           []string   `json:"tags,omitempty" bson:"tags,omitempty"`
	ExcludeBlocked bool       `json:"exclude_blocked" bson:"exclude_blocked"`
	ActiveAfter    *time.Time `json:"active_after,omitempty" bson:"active_after,omitempty"`
}

// Recipient is one audience member of a broadcast run.
type Recipient struct {
	UserID int64 `json:"user_id" bson:"user_id"`
	ChatID int64 `json:"chat_id" bson:"chat_id"`
}

// Broadcast is a one-time bulk send campaign. Cursor is the index of the
// next unsent recipient in the audience snapshot, so resume continues
// instead of restarting.
type Broadcast struct {
	ID     string          `json:"id" bson:"id"`
	BotID  string          `json:"bot_id" bson:"bot_id"`
	Name   string          `json:"name" bson:"name"`
	Status BroadcastStatus `json:"status" bson:"status"`

	Content  Content        `json:"content" bson:"content"`
	Keyboard *Keyboard      `json:"keyboard,omitempty" bson:"keyboard,omitempty"`
	Filter   AudienceFilter `json:"filter" bson:"filter"`

	Total     int   `json:"total" bson:"total"`
	Sent      int64 `json:"sent" bson:"sent"`
	Delivered int64 `json:"delivered" bson:"delivered"`
	Failed    int64 `json:"failed" bson:"failed"`
	Blocked   int64 `json:"blocked" bson:"blocked"`
	Cursor    int   `json:"cursor" bson:"cursor"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// CanStart reports whether the campaign may transition to sending.
func (b *Broadcast) CanStart() bool {
	return b.Status == BroadcastDraft || b.Status == BroadcastScheduled
}

// CanPause reports whether the campaign may be paused.
func (b *Broadcast) CanPause() bool {
	return b.Status == BroadcastSending
}

// CanResume reports whether the campaign may resume sending.
func (b *Broadcast) CanResume() bool {
	return b.Status == BroadcastPaused
}

// CanCancel reports whether the campaign may still be cancelled.
func (b *Broadcast) CanCancel() bool {
	return b.Status != BroadcastCompleted && b.Status != BroadcastCancelled
}

// Editable reports whether content and filter may still change.
func (b *Broadcast) Editable() bool {
	return b.Status == BroadcastDraft || b.Status == BroadcastScheduled
}

// Processed is the number of recipients with a recorded outcome. Each
// recipient lands in exactly one counter; a delivery receipt moves one from
// Sent to Delivered, so the sum never exceeds Total.
func (b *Broadcast) Processed() int64 {
	return b.Sent + b.Delivered + b.Failed + b.Blocked
}

// Progress is the processed share in percent.
func (b *Broadcast) Progress() int {
	if b.Total == 0 {
		return 100
	}
	return int(b.Processed() * 100 / int64(b.Total))
}
