package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"

	"funnelgram/bot/funnel"
	"funnelgram/bot/ui"
	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// EventHandler consumes normalized inbound events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *entity.InboundEvent) error
}

// TgBot is the Telegram transport: it polls updates, normalizes them into
// inbound events for the engine, and implements funnel.Sender and
// funnel.Membership on the way out.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botID       string
	botUsername string
	engine      EventHandler
}

// NewTgBot creates a Telegram bot transport instance.
func NewTgBot(botID, botName, apiKey string, log *slog.Logger) (*TgBot, error) {
	bot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		botID:       botID,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	bot.api = api

	return bot, nil
}

// SetEngine sets the event handler for inbound updates.
func (b *TgBot) SetEngine(engine EventHandler) {
	b.engine = engine
}

// Start begins polling for updates and handling them. It blocks until the
// updater stops.
func (b *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(bot *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			log.Println("an error occurred while handling update:", err.Error())
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	updater := ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCallback(b.anyCallback, b.handleCallback))
	dispatcher.AddHandler(handlers.NewMessage(message.Contact, b.handleContact))
	dispatcher.AddHandler(handlers.NewMessage(message.Location, b.handleLocation))
	dispatcher.AddHandler(handlers.NewMessage(message.Photo, b.handlePhoto))
	dispatcher.AddHandler(handlers.NewMessage(message.Text, b.handleMessage))
	dispatcher.AddHandler(handlers.NewMyChatMember(nil, b.handleMyChatMember))

	err := updater.StartPolling(b.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			AllowedUpdates: []string{
				"message", "callback_query", "my_chat_member",
			},
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	b.log.Info("bot started", slog.String("username", b.botUsername))

	updater.Idle()

	return nil
}

func (b *TgBot) anyCallback(cq *tgbotapi.CallbackQuery) bool {
	return true
}

// dispatch hands a normalized event to the engine.
func (b *TgBot) dispatch(ev *entity.InboundEvent) error {
	if b.engine == nil {
		b.log.Warn("engine not initialized")
		return nil
	}
	if err := b.engine.HandleEvent(context.Background(), ev); err != nil {
		b.log.Error("handling event",
			slog.Int64("user_id", ev.UserID),
			slog.String("event", string(ev.Type)),
			sl.Err(err),
		)
		return err
	}
	return nil
}

// baseEvent fills the fields every update shares.
func (b *TgBot) baseEvent(ctx *ext.Context) *entity.InboundEvent {
	ev := &entity.InboundEvent{
		ID:    ctx.Update.UpdateId,
		BotID: b.botID,
	}
	if ctx.EffectiveUser != nil {
		ev.UserID = ctx.EffectiveUser.Id
		ev.FirstName = ctx.EffectiveUser.FirstName
		ev.LastName = ctx.EffectiveUser.LastName
		ev.Username = ctx.EffectiveUser.Username
	}
	if ctx.EffectiveChat != nil {
		ev.ChatID = ctx.EffectiveChat.Id
	}
	return ev
}

func (b *TgBot) handleMessage(bot *tgbotapi.Bot, ctx *ext.Context) error {
	text := ctx.EffectiveMessage.Text
	ev := b.baseEvent(ctx)

	if strings.HasPrefix(text, "/") {
		ev.Type = entity.EventCommand
		ev.Text = text
		if _, args, found := strings.Cut(text, " "); found {
			ev.CommandArgs = strings.TrimSpace(args)
		}
	} else {
		ev.Type = entity.EventMessage
		ev.Text = text
	}
	return b.dispatch(ev)
}

func (b *TgBot) handleCallback(bot *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery

	// Acknowledge immediately so the client stops its spinner even if the
	// engine takes a while.
	if _, err := cq.Answer(bot, nil); err != nil {
		b.log.Debug("answering callback", sl.Err(err))
	}

	ev := b.baseEvent(ctx)
	ev.Type = entity.EventCallback
	ev.CallbackID = cq.Id
	ev.CallbackData = cq.Data
	if cq.Message != nil {
		ev.ChatID = cq.Message.GetChat().Id
	}
	return b.dispatch(ev)
}

func (b *TgBot) handleContact(bot *tgbotapi.Bot, ctx *ext.Context) error {
	contact := ctx.EffectiveMessage.Contact

	ev := b.baseEvent(ctx)
	ev.Type = entity.EventContact
	ev.Contact = &entity.ContactPayload{
		Phone:     contact.PhoneNumber,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
	}
	return b.dispatch(ev)
}

func (b *TgBot) handleLocation(bot *tgbotapi.Bot, ctx *ext.Context) error {
	loc := ctx.EffectiveMessage.Location

	ev := b.baseEvent(ctx)
	ev.Type = entity.EventLocation
	ev.Location = &entity.LocationPayload{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
	return b.dispatch(ev)
}

func (b *TgBot) handlePhoto(bot *tgbotapi.Bot, ctx *ext.Context) error {
	photos := ctx.EffectiveMessage.Photo

	ev := b.baseEvent(ctx)
	ev.Type = entity.EventPhoto
	ev.Text = ctx.EffectiveMessage.Caption
	// largest size last
	ev.PhotoFileID = photos[len(photos)-1].FileId
	return b.dispatch(ev)
}

// handleMyChatMember tracks block and unblock of the bot by the user.
func (b *TgBot) handleMyChatMember(bot *tgbotapi.Bot, ctx *ext.Context) error {
	upd := ctx.MyChatMember
	if upd == nil || upd.Chat.Type != "private" {
		return nil
	}

	status := upd.NewChatMember.MergeChatMember().Status
	blocked := status == "kicked" || status == "left"

	ev := b.baseEvent(ctx)
	ev.Type = entity.EventMemberUpdate
	ev.UserID = upd.From.Id
	ev.ChatID = upd.Chat.Id
	ev.Blocked = &blocked
	// event triggers match against the new membership status
	ev.Text = status
	b.log.Info("chat member update",
		slog.Int64("user_id", ev.UserID),
		slog.Bool("blocked", blocked),
	)
	return b.dispatch(ev)
}

// Send implements funnel.Sender. A 403 from the API means the user blocked
// the bot and maps to funnel.ErrRecipientBlocked.
func (b *TgBot) Send(ctx context.Context, msg *entity.OutboundMessage) error {
	markup := ui.Markup(msg.Keyboard)

	var err error
	switch msg.Content.Type {
	case "photo":
		_, err = b.api.SendPhoto(msg.ChatID, tgbotapi.InputFileByID(msg.Content.FileID), &tgbotapi.SendPhotoOpts{
			Caption:     msg.Content.Caption,
			ReplyMarkup: markup,
		})
	case "video":
		_, err = b.api.SendVideo(msg.ChatID, tgbotapi.InputFileByID(msg.Content.FileID), &tgbotapi.SendVideoOpts{
			Caption:     msg.Content.Caption,
			ReplyMarkup: markup,
		})
	case "document":
		_, err = b.api.SendDocument(msg.ChatID, tgbotapi.InputFileByID(msg.Content.FileID), &tgbotapi.SendDocumentOpts{
			Caption:     msg.Content.Caption,
			ReplyMarkup: markup,
		})
	default:
		_, err = b.api.SendMessage(msg.ChatID, msg.Content.Text, &tgbotapi.SendMessageOpts{
			ReplyMarkup: markup,
		})
	}
	if err != nil {
		var tgErr *tgbotapi.TelegramError
		if errors.As(err, &tgErr) && tgErr.Code == 403 {
			return funnel.ErrRecipientBlocked
		}
		return err
	}
	return nil
}

// IsMember implements funnel.Membership. Channel is a numeric chat ID, with
// or without the -100 prefix.
func (b *TgBot) IsMember(ctx context.Context, channel string, userID int64) (bool, error) {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(channel, "@"), 10, 64)
	if err != nil {
		return false, fmt.Errorf("channel %q is not a numeric chat id", channel)
	}

	member, err := b.api.GetChatMember(chatID, userID, nil)
	if err != nil {
		return false, err
	}

	switch member.MergeChatMember().Status {
	case "creator", "administrator", "member":
		return true, nil
	}
	return false, nil
}
