package funnel

import (
	"context"
	"errors"

	"funnelgram/entity"
)

// ErrRecipientBlocked is returned by a Sender when the end user has blocked
// the bot. It is terminal for that recipient and never retried.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

// StateStore persists conversation state per (bot, user) pair. Load returns
// (nil, nil) when no state exists. The engine guarantees single-writer
// access per user; the store only has to not lose a committed write.
type StateStore interface {
	LoadState(ctx context.Context, botID string, userID int64) (*entity.ConversationState, error)
	SaveState(ctx context.Context, state *entity.ConversationState) error
	DeleteState(ctx context.Context, botID string, userID int64) error
}

// FunnelStore resolves funnel definitions.
type FunnelStore interface {
	GetFunnel(ctx context.Context, id string) (*entity.Funnel, error)
	ActiveFunnels(ctx context.Context, botID string) ([]entity.Funnel, error)
}

// TriggerStore lists trigger rules for matching.
type TriggerStore interface {
	ActiveTriggers(ctx context.Context, botID string) ([]entity.Trigger, error)
}

// SubscriberStore persists end users of a bot.
type SubscriberStore interface {
	GetSubscriber(ctx context.Context, botID string, userID int64) (*entity.Subscriber, error)
	SaveSubscriber(ctx context.Context, sub *entity.Subscriber) error
}

// Sender delivers outbound messages through the chat transport.
type Sender interface {
	Send(ctx context.Context, msg *entity.OutboundMessage) error
}

// Membership answers channel-subscription checks for subscribe gates.
type Membership interface {
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// ActionRunner invokes the external side effect of an Action step. Failures
// are logged by the engine and never block advancement.
type ActionRunner interface {
	Run(ctx context.Context, action entity.ActionType, config map[string]any,
		state *entity.ConversationState, sub *entity.Subscriber) error
}
