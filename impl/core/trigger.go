package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"funnelgram/entity"
)

// CreateTrigger validates and stores a new trigger rule.
func (c *Core) CreateTrigger(ctx context.Context, t *entity.Trigger) (*entity.Trigger, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger: %w", err)
	}

	if f, err := c.repo.GetFunnel(ctx, t.FunnelID); err != nil {
		return nil, err
	} else if f == nil {
		return nil, fmt.Errorf("funnel %s not found", t.FunnelID)
	}

	if err := c.repo.SaveTrigger(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTrigger validates and replaces an existing trigger rule.
func (c *Core) UpdateTrigger(ctx context.Context, t *entity.Trigger) (*entity.Trigger, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	existing, err := c.repo.GetTrigger(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("trigger %s not found", t.ID)
	}

	t.BotID = existing.BotID
	t.CreatedAt = existing.CreatedAt
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger: %w", err)
	}

	if err := c.repo.SaveTrigger(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTrigger removes a trigger rule.
func (c *Core) DeleteTrigger(ctx context.Context, id string) error {
	if c.repo == nil {
		return fmt.Errorf("repository is not set")
	}
	return c.repo.DeleteTrigger(ctx, id)
}

// ListTriggers returns the triggers of a bot.
func (c *Core) ListTriggers(ctx context.Context, botID string) ([]entity.Trigger, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListTriggers(ctx, botID)
}

// TestTrigger dry-runs matching against a text sample and returns every rule
// that would match, in firing order. Nothing is executed.
func (c *Core) TestTrigger(ctx context.Context, botID, text string) ([]entity.Trigger, error) {
	if c.matcher == nil {
		return nil, fmt.Errorf("matcher is not set")
	}

	ev := &entity.InboundEvent{
		BotID: botID,
		Text:  text,
		Type:  entity.EventMessage,
	}
	if strings.HasPrefix(text, "/") {
		ev.Type = entity.EventCommand
		if _, args, found := strings.Cut(text, " "); found {
			ev.CommandArgs = strings.TrimSpace(args)
		}
	}

	return c.matcher.Matching(ctx, ev)
}
