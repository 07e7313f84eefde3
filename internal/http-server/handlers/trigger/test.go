package trigger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/entity"
	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

type TestRequest struct {
	BotID string `json:"bot_id"`
	Text  string `json:"text"`
}

type TestResponse struct {
	Matches []entity.Trigger `json:"matches"`
	Winner  *entity.Trigger  `json:"winner,omitempty"`
}

// Test dry-runs trigger matching against a text sample. No funnel is
// started; the full firing order comes back so rule priority can be tuned.
func Test(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.trigger")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req TestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if req.BotID == "" || req.Text == "" {
			render.JSON(w, r, response.Error("bot_id and text are required"))
			return
		}

		matches, err := handler.TestTrigger(r.Context(), req.BotID, req.Text)
		if err != nil {
			logger.Error("test trigger", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Test failed: %v", err)))
			return
		}

		resp := TestResponse{Matches: matches}
		if len(matches) > 0 {
			resp.Winner = &matches[0]
		}
		render.JSON(w, r, resp)
	}
}
