package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"funnelgram/internal/config"
	"funnelgram/internal/http-server/handlers/broadcast"
	"funnelgram/internal/http-server/handlers/errors"
	"funnelgram/internal/http-server/handlers/funnel"
	"funnelgram/internal/http-server/handlers/key"
	"funnelgram/internal/http-server/handlers/subscriber"
	"funnelgram/internal/http-server/handlers/trigger"
	"funnelgram/internal/http-server/middleware/authenticate"
	"funnelgram/internal/http-server/middleware/timeout"
	"funnelgram/internal/lib/sl"
	"funnelgram/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	trigger.Core
	funnel.Core
	broadcast.Core
	subscriber.Core
	key.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	// WebSocket upgrades authenticate by query token and outlive the
	// request timeout, so they stay outside the API group.
	router.Get("/ws/broadcasts", broadcast.Live(log, hub, handler))

	router.Group(func(g chi.Router) {
		g.Use(timeout.Timeout(15))
		g.Use(render.SetContentType(render.ContentTypeJSON))
		g.Use(authenticate.New(log, handler))

		g.NotFound(errors.NotFound(log))
		g.MethodNotAllowed(errors.NotAllowed(log))

		g.Route("/api/v1", func(v1 chi.Router) {
			v1.Route("/triggers", func(r chi.Router) {
				r.Get("/", trigger.List(log, handler))
				r.Post("/", trigger.Create(log, handler))
				r.Post("/test", trigger.Test(log, handler))
				r.Put("/{id}", trigger.Update(log, handler))
				r.Delete("/{id}", trigger.Delete(log, handler))
			})
			v1.Route("/funnels", func(r chi.Router) {
				r.Get("/", funnel.List(log, handler))
				r.Post("/", funnel.Create(log, handler))
				r.Get("/{id}", funnel.Get(log, handler))
				r.Put("/{id}", funnel.Update(log, handler))
				r.Delete("/{id}", funnel.Delete(log, handler))
				r.Put("/{id}/steps", funnel.SaveSteps(log, handler))
				r.Post("/{id}/activate", funnel.Activate(log, handler))
			})
			v1.Route("/broadcasts", func(r chi.Router) {
				r.Get("/", broadcast.List(log, handler))
				r.Post("/", broadcast.Create(log, handler))
				r.Get("/{id}", broadcast.Get(log, handler))
				r.Put("/{id}", broadcast.Update(log, handler))
				r.Delete("/{id}", broadcast.Delete(log, handler))
				r.Post("/{id}/start", broadcast.Start(log, handler))
				r.Post("/{id}/pause", broadcast.Pause(log, handler))
				r.Post("/{id}/resume", broadcast.Resume(log, handler))
				r.Post("/{id}/cancel", broadcast.Cancel(log, handler))
				r.Post("/{id}/delivered", broadcast.Deliver(log, handler))
			})
			v1.Route("/subscribers", func(r chi.Router) {
				r.Get("/", subscriber.List(log, handler))
				r.Get("/stats", subscriber.Stats(log, handler))
				r.Post("/tag", subscriber.Tag(log, handler))
			})
			v1.Route("/key", func(r chi.Router) {
				r.Post("/new", key.Generate(log, handler))
			})
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
