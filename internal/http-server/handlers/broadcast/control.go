package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/lib/api/response"
	"funnelgram/internal/lib/sl"
)

// control wraps the four lifecycle transitions; they differ only in the
// core call and the confirmation text.
func control(log *slog.Logger, action string, call func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.broadcast")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if err := call(r.Context(), id); err != nil {
			logger.Error(action+" broadcast", slog.String("broadcast_id", id), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("%s failed: %v", action, err)))
			return
		}
		logger.Info("broadcast "+action, slog.String("broadcast_id", id))

		render.JSON(w, r, response.Ok("Broadcast "+action))
	}
}

func Start(log *slog.Logger, handler Core) http.HandlerFunc {
	return control(log, "started", func(ctx context.Context, id string) error {
		return handler.StartBroadcast(ctx, id)
	})
}

func Pause(log *slog.Logger, handler Core) http.HandlerFunc {
	return control(log, "paused", func(ctx context.Context, id string) error {
		return handler.PauseBroadcast(ctx, id)
	})
}

func Resume(log *slog.Logger, handler Core) http.HandlerFunc {
	return control(log, "resumed", func(ctx context.Context, id string) error {
		return handler.ResumeBroadcast(ctx, id)
	})
}

func Cancel(log *slog.Logger, handler Core) http.HandlerFunc {
	return control(log, "cancelled", func(ctx context.Context, id string) error {
		return handler.CancelBroadcast(ctx, id)
	})
}
