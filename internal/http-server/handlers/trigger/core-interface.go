package trigger

import (
	"context"

	"funnelgram/entity"
)

type Core interface {
	CreateTrigger(ctx context.Context, t *entity.Trigger) (*entity.Trigger, error)
	UpdateTrigger(ctx context.Context, t *entity.Trigger) (*entity.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
	ListTriggers(ctx context.Context, botID string) ([]entity.Trigger, error)
	TestTrigger(ctx context.Context, botID, text string) ([]entity.Trigger, error)
}
