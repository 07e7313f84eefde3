package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"funnelgram/entity"
)

// CreateBroadcast stores a new campaign as a draft, or as scheduled when a
// future start moment is given.
func (c *Core) CreateBroadcast(ctx context.Context, b *entity.Broadcast) (*entity.Broadcast, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	if b.Name == "" {
		return nil, fmt.Errorf("broadcast has no name")
	}
	if b.Content.Type == "" {
		b.Content.Type = "text"
	}
	if b.Content.Type == "text" && b.Content.Text == "" {
		return nil, fmt.Errorf("broadcast has no content")
	}

	b.ID = uuid.NewString()
	b.Status = entity.BroadcastDraft
	b.CreatedAt = time.Now()
	if b.ScheduledAt != nil {
		if b.ScheduledAt.Before(time.Now()) {
			return nil, fmt.Errorf("scheduled moment is in the past")
		}
		b.Status = entity.BroadcastScheduled
	}

	// the recipient count is part of the created campaign; the processor
	// refreshes it from the audience snapshot at start
	rcpts, err := c.repo.Audience(ctx, b.BotID, b.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}
	b.Total = len(rcpts)

	if err := c.repo.SaveBroadcast(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBroadcast replaces content, filter and schedule of an editable
// campaign.
func (c *Core) UpdateBroadcast(ctx context.Context, b *entity.Broadcast) (*entity.Broadcast, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	existing, err := c.repo.GetBroadcast(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("broadcast %s not found", b.ID)
	}
	if !existing.Editable() {
		return nil, fmt.Errorf("broadcast %s is not editable in status %s", b.ID, existing.Status)
	}

	if b.Name != "" {
		existing.Name = b.Name
	}
	existing.Content = b.Content
	existing.Keyboard = b.Keyboard
	existing.Filter = b.Filter
	existing.ScheduledAt = b.ScheduledAt
	if existing.ScheduledAt != nil {
		existing.Status = entity.BroadcastScheduled
	} else {
		existing.Status = entity.BroadcastDraft
	}

	// filter edits change the audience, keep the shown count honest
	rcpts, err := c.repo.Audience(ctx, existing.BotID, existing.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}
	existing.Total = len(rcpts)

	if err := c.repo.SaveBroadcast(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetBroadcast retrieves a campaign with its live counters.
func (c *Core) GetBroadcast(ctx context.Context, id string) (*entity.Broadcast, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	b, err := c.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("broadcast %s not found", id)
	}
	return b, nil
}

// ListBroadcasts returns every campaign of a bot, newest first.
func (c *Core) ListBroadcasts(ctx context.Context, botID string) ([]entity.Broadcast, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListBroadcasts(ctx, botID)
}

// DeleteBroadcast removes a campaign that is not currently sending.
func (c *Core) DeleteBroadcast(ctx context.Context, id string) error {
	if c.repo == nil {
		return fmt.Errorf("repository is not set")
	}

	b, err := c.repo.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}
	if b.Status == entity.BroadcastSending {
		return fmt.Errorf("broadcast %s is sending, pause or cancel it first", id)
	}
	return c.repo.DeleteBroadcast(ctx, id)
}

// StartBroadcast begins delivery of a draft or scheduled campaign.
func (c *Core) StartBroadcast(ctx context.Context, id string) error {
	if c.broadcaster == nil {
		return fmt.Errorf("broadcaster is not set")
	}
	return c.broadcaster.Start(ctx, id)
}

// PauseBroadcast suspends delivery; sent counters and cursor are kept.
func (c *Core) PauseBroadcast(ctx context.Context, id string) error {
	if c.broadcaster == nil {
		return fmt.Errorf("broadcaster is not set")
	}
	return c.broadcaster.Pause(ctx, id)
}

// ResumeBroadcast continues a paused campaign from where it stopped.
func (c *Core) ResumeBroadcast(ctx context.Context, id string) error {
	if c.broadcaster == nil {
		return fmt.Errorf("broadcaster is not set")
	}
	return c.broadcaster.Resume(ctx, id)
}

// CancelBroadcast terminally stops a campaign.
func (c *Core) CancelBroadcast(ctx context.Context, id string) error {
	if c.broadcaster == nil {
		return fmt.Errorf("broadcaster is not set")
	}
	return c.broadcaster.Cancel(ctx, id)
}

// MarkDelivered records delivery receipts: n recipients move from sent to
// delivered. The counter sum is unchanged.
func (c *Core) MarkDelivered(ctx context.Context, id string, n int64) (*entity.Broadcast, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	if n <= 0 {
		return nil, fmt.Errorf("receipt count must be positive")
	}

	b, err := c.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("broadcast %s not found", id)
	}
	if n > b.Sent {
		return nil, fmt.Errorf("receipts exceed sent count: %d > %d", n, b.Sent)
	}

	b.Sent -= n
	b.Delivered += n
	if err := c.repo.SaveBroadcast(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
