package funnel

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
		mod := sl.Module("http.handlers.funnel")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("funnel service not available")
			render.JSON(w, r, response.Error("funnel service not available"))
			return
		}

		var req entity.Funnel
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		f, err := handler.CreateFunnel(r.Context(), &req)
		if err != nil {
			logger.Error("create funnel", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Create failed: %v", err)))
			return
		}
		logger.Debug("funnel created", slog.String("funnel_id", f.ID))

		render.JSON(w, r, f)
	}
}
