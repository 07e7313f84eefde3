package funnel

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

type ActivateRequest struct {
	Active bool `json:"active"`
}

func Activate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.funnel")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req ActivateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		id := chi.URLParam(r, "id")
		f, err := handler.SetFunnelActive(r.Context(), id, req.Active)
		if err != nil {
			logger.Error("set funnel active",
				slog.String("funnel_id", id),
				slog.Bool("active", req.Active),
				sl.Err(err),
			)
			render.JSON(w, r, response.Error(fmt.Sprintf("Activation failed: %v", err)))
			return
		}

		render.JSON(w, r, f)
	}
}
