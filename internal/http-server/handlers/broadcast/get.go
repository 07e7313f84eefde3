package broadcast

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

// Get returns a campaign with its live counters, the polling counterpart of
// the websocket stream.
func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.broadcast")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		b, err := handler.GetBroadcast(r.Context(), id)
		if err != nil {
			logger.Error("get broadcast", slog.String("broadcast_id", id), sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Get failed: %v", err)))
			return
		}

		render.JSON(w, r, b)
	}
}
