package trigger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/entity"
	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

func Update(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.trigger")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.Trigger
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		req.ID = chi.URLParam(r, "id")

		t, err := handler.UpdateTrigger(r.Context(), &req)
		if err != nil {
			logger.Error("update trigger", slog.String("trigger_id", req.ID), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Update failed: %v", err)))
			return
		}

		render.JSON(w, r, t)
	}
}
