package broadcast

import (
	"log/slog"
	"net/http"

	"funnelgram/internal/ws"
)

// Live upgrades the connection to a WebSocket that streams campaign progress
// events. Auth is by token query parameter since browsers cannot set headers
// on WebSocket upgrades.
func Live(log *slog.Logger, hub *ws.Hub, auth ws.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, auth, log, w, r)
	}
}
