package broadcast

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
		mod := sl.Module("http.handlers.broadcast")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("broadcast service not available")
			render.JSON(w, r, response.Error("broadcast service not available"))
			return
		}

		var req entity.Broadcast
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		b, err := handler.CreateBroadcast(r.Context(), &req)
		if err != nil {
			logger.Error("create broadcast", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Create failed: %v", err)))
			return
		}
		logger.Debug("broadcast created", slog.String("broadcast_id", b.ID))

		render.JSON(w, r, b)
	}
}
