package subscriber

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

type TagRequest struct {
	BotID  string   `json:"bot_id"`
	UserID int64    `json:"user_id"`
	Action string   `json:"action"` // add or remove
	Tags   []string `json:"tags"`
}

func Tag(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.subscriber")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req TagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if req.BotID == "" || req.UserID == 0 || len(req.Tags) == 0 {
			render.JSON(w, r, response.Error("bot_id, user_id and tags are required"))
			return
		}

		sub, err := handler.TagSubscriber(r.Context(), req.BotID, req.UserID, req.Action, req.Tags)
		if err != nil {
			logger.Error("tag subscriber",
				slog.Int64("user_id", req.UserID),
				slog.String("action", req.Action),
				sl.Err(err),
			)
			render.JSON(w, r, response.Error(fmt.Sprintf("Tag failed: %v", err)))
			return
		}

		render.JSON(w, r, sub)
	}
}
