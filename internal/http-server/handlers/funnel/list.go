package funnel

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.funnel")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		botID := r.URL.Query().Get("bot_id")
		if botID == "" {
			render.JSON(w, r, response.Error("bot_id is required"))
			return
		}

		funnels, err := handler.ListFunnels(r.Context(), botID)
		if err != nil {
			logger.Error("list funnels", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("List failed: %v", err)))
			return
		}

		render.JSON(w, r, funnels)
	}
}
