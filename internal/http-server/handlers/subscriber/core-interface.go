package subscriber

import (
	"context"

	"funnelgram/entity"
	"funnelgram/impl/core"
)

type Core interface {
	ListSubscribers(ctx context.Context, botID string) ([]entity.Subscriber, error)
	GetSubscriberStats(ctx context.Context, botID string) (*core.SubscriberStats, error)
	TagSubscriber(ctx context.Context, botID string, userID int64, action string, tags []string) (*entity.Subscriber, error)
}
