package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

type DeliverRequest struct {
	Count int64 `json:"count"`
}

// Deliver records delivery receipts reported by an external tracker; the
// given number of recipients moves from sent to delivered.
func Deliver(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.broadcast")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req DeliverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		id := chi.URLParam(r, "id")
		b, err := handler.MarkDelivered(r.Context(), id, req.Count)
		if err != nil {
			logger.Error("mark delivered", slog.String("broadcast_id", id), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Receipt failed: %v", err)))
			return
		}

		render.JSON(w, r, b)
	}
}
