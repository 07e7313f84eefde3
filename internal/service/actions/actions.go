package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// Service executes the external side effects of action steps. Webhooks are
// delivered as JSON POSTs; the remaining action types resolve to structured
// log records until a CRM transport is attached.
type Service struct {
	client *http.Client
	log    *slog.Logger
}

func New(log *slog.Logger) *Service {
	return &Service{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With(sl.Module("service.actions")),
	}
}

type webhookPayload struct {
	Action     string         `json:"action"`
	BotID      string         `json:"bot_id"`
	UserID     int64          `json:"user_id"`
	FunnelID   string         `json:"funnel_id"`
	StepID     string         `json:"step_id"`
	Subscriber webhookContact `json:"subscriber"`
	Fields     map[string]any `json:"fields"`
	Timestamp  int64          `json:"timestamp"`
}

type webhookContact struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (s *Service) Run(ctx context.Context, action entity.ActionType, config map[string]any,
	state *entity.ConversationState, sub *entity.Subscriber) error {

	switch action {
	case entity.ActionWebhook, entity.ActionCreateLead:
		return s.postWebhook(ctx, action, config, state, sub)
	case entity.ActionNotify, entity.ActionHandoff, entity.ActionUpdateUser:
		s.log.Info("action executed",
			slog.String("action", string(action)),
			slog.String("bot_id", state.BotID),
			slog.Int64("user_id", state.UserID),
			slog.Any("config", config),
		)
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action)
	}
}

func (s *Service) postWebhook(ctx context.Context, action entity.ActionType,
	config map[string]any, state *entity.ConversationState, sub *entity.Subscriber) error {

	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("action %s: missing url", action)
	}

	payload := webhookPayload{
		Action:   string(action),
		BotID:    state.BotID,
		UserID:   state.UserID,
		FunnelID: state.FunnelID,
		StepID:   state.StepID,
		Subscriber: webhookContact{
			Name:     sub.FullName(),
			Username: sub.Username,
			Phone:    sub.Phone,
			Email:    sub.Email,
		},
		Fields:    state.Fields,
		Timestamp: time.Now().UnixMilli(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret, ok := config["secret"].(string); ok && secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.With(
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		).Error("webhook rejected")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.log.Debug("webhook delivered",
		slog.String("action", string(action)),
		slog.Int64("user_id", state.UserID),
	)
	return nil
}
