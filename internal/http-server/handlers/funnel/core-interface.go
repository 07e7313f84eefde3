package funnel

import (
	"context"

	"funnelgram/entity"
)

type Core interface {
	CreateFunnel(ctx context.Context, f *entity.Funnel) (*entity.Funnel, error)
	UpdateFunnel(ctx context.Context, id, name, completionMessage string) (*entity.Funnel, error)
	GetFunnel(ctx context.Context, id string) (*entity.Funnel, error)
	ListFunnels(ctx context.Context, botID string) ([]entity.Funnel, error)
	DeleteFunnel(ctx context.Context, id string) error
	SaveFunnelSteps(ctx context.Context, funnelID, firstStepID string, steps []entity.Step) (*entity.Funnel, error)
	SetFunnelActive(ctx context.Context, id string, active bool) (*entity.Funnel, error)
}
