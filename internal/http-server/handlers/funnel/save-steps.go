package funnel

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

type SaveStepsRequest struct {
	FirstStepID string        `json:"first_step_id"`
	Steps       []entity.Step `json:"steps"`
}

// SaveSteps replaces the whole step graph in one request. The editor may
// send temporary step identifiers; the response carries the stable ones.
func SaveSteps(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.funnel")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req SaveStepsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		id := chi.URLParam(r, "id")
		f, err := handler.SaveFunnelSteps(r.Context(), id, req.FirstStepID, req.Steps)
		if err != nil {
			logger.Error("save funnel steps", slog.String("funnel_id", id), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Save failed: %v", err)))
			return
		}
		logger.Debug("funnel steps saved",
			slog.String("funnel_id", id),
			slog.Int("steps", len(f.Steps)),
		)

		render.JSON(w, r, f)
	}
}
