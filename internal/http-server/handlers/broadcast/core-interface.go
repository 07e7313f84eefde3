package broadcast

import (
	"context"

	"funnelgram/entity"
)

type Core interface {
	CreateBroadcast(ctx context.Context, b *entity.Broadcast) (*entity.Broadcast, error)
	UpdateBroadcast(ctx context.Context, b *entity.Broadcast) (*entity.Broadcast, error)
	GetBroadcast(ctx context.Context, id string) (*entity.Broadcast, error)
	ListBroadcasts(ctx context.Context, botID string) ([]entity.Broadcast, error)
	DeleteBroadcast(ctx context.Context, id string) error
	StartBroadcast(ctx context.Context, id string) error
	PauseBroadcast(ctx context.Context, id string) error
	ResumeBroadcast(ctx context.Context, id string) error
	CancelBroadcast(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string, n int64) (*entity.Broadcast, error)
}
