package core

import (
	"context"
	"fmt"
	"time"

	"funnelgram/entity"
)

// ListSubscribers returns every subscriber of a bot.
func (c *Core) ListSubscribers(ctx context.Context, botID string) ([]entity.Subscriber, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListSubscribers(ctx, botID)
}

// SubscriberStats summarizes a bot's audience.
type SubscriberStats struct {
	Total       int64 `json:"total"`
	ActiveWeek  int64 `json:"active_week"`
	ActiveMonth int64 `json:"active_month"`
}

// GetSubscriberStats counts the audience and its recent activity.
func (c *Core) GetSubscriberStats(ctx context.Context, botID string) (*SubscriberStats, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	total, err := c.repo.CountSubscribers(ctx, botID, nil)
	if err != nil {
		return nil, err
	}
	week := time.Now().AddDate(0, 0, -7)
	activeWeek, err := c.repo.CountSubscribers(ctx, botID, &week)
	if err != nil {
		return nil, err
	}
	month := time.Now().AddDate(0, -1, 0)
	activeMonth, err := c.repo.CountSubscribers(ctx, botID, &month)
	if err != nil {
		return nil, err
	}

	return &SubscriberStats{
		Total:       total,
		ActiveWeek:  activeWeek,
		ActiveMonth: activeMonth,
	}, nil
}

// TagSubscriber adds or removes tags on one subscriber from the authoring
// side, with the same idempotence as tag steps.
func (c *Core) TagSubscriber(ctx context.Context, botID string, userID int64, action string, tags []string) (*entity.Subscriber, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	sub, err := c.repo.GetSubscriber(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscriber %d not found", userID)
	}

	var changed bool
	switch action {
	case "add":
		changed = sub.AddTags(tags)
	case "remove":
		changed = sub.RemoveTags(tags)
	default:
		return nil, fmt.Errorf("unknown tag action %q", action)
	}

	if changed {
		if err := c.repo.SaveSubscriber(ctx, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}
