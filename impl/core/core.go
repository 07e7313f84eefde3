package core

import (
	"context"
	"log/slog"
	"time"

	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

type Repository interface {
	CheckApiKey(key string) (string, error)
	GenerateApiKey(username string) (string, error)

	SaveFunnel(ctx context.Context, f *entity.Funnel) error
	GetFunnel(ctx context.Context, id string) (*entity.Funnel, error)
	ListFunnels(ctx context.Context, botID string) ([]entity.Funnel, error)
	ActiveFunnels(ctx context.Context, botID string) ([]entity.Funnel, error)
	DeleteFunnel(ctx context.Context, id string) error

	SaveTrigger(ctx context.Context, t *entity.Trigger) error
	GetTrigger(ctx context.Context, id string) (*entity.Trigger, error)
	ListTriggers(ctx context.Context, botID string) ([]entity.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error

	GetBroadcast(ctx context.Context, id string) (*entity.Broadcast, error)
	SaveBroadcast(ctx context.Context, b *entity.Broadcast) error
	ListBroadcasts(ctx context.Context, botID string) ([]entity.Broadcast, error)
	DeleteBroadcast(ctx context.Context, id string) error

	ListSubscribers(ctx context.Context, botID string) ([]entity.Subscriber, error)
	Audience(ctx context.Context, botID string, f entity.AudienceFilter) ([]entity.Recipient, error)
	GetSubscriber(ctx context.Context, botID string, userID int64) (*entity.Subscriber, error)
	SaveSubscriber(ctx context.Context, sub *entity.Subscriber) error
	CountSubscribers(ctx context.Context, botID string, activeAfter *time.Time) (int64, error)
}

// Broadcaster controls campaign delivery runs.
type Broadcaster interface {
	Start(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// TriggerMatcher answers dry-run matching for the authoring API.
type TriggerMatcher interface {
	Matching(ctx context.Context, ev *entity.InboundEvent) ([]entity.Trigger, error)
}

// Core aggregates the services behind the HTTP API.
type Core struct {
	repo        Repository
	broadcaster Broadcaster
	matcher     TriggerMatcher
	authKey     string
	keys        map[string]string
	log         *slog.Logger
}

func New(log *slog.Logger) *Core {
	return &Core{
		log:  log.With(sl.Module("core")),
		keys: make(map[string]string),
	}
}

func (c *Core) SetRepository(repo Repository) {
	c.repo = repo
}

func (c *Core) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

func (c *Core) SetMatcher(m TriggerMatcher) {
	c.matcher = m
}

func (c *Core) SetAuthKey(key string) {
	c.authKey = key
}
