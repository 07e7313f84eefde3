package funnel

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.funnel")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if err := handler.DeleteFunnel(r.Context(), id); err != nil {
			logger.Error("delete funnel", slog.String("funnel_id", id), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Delete failed: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok("Funnel deleted"))
	}
}
