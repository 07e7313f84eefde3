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

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.trigger")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("trigger service not available")
			render.JSON(w, r, response.Error("trigger service not available"))
			return
		}

		var req entity.Trigger
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		t, err := handler.CreateTrigger(r.Context(), &req)
		if err != nil {
			logger.Error("create trigger", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Create failed: %v", err)))
			return
		}
		logger.Debug("trigger created", slog.String("trigger_id", t.ID))

		render.JSON(w, r, t)
	}
}
