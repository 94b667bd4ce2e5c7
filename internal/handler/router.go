package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zixuanli/edge-sim/backend/internal/config"
	personaHandler "github.com/zixuanli/edge-sim/backend/internal/handler/persona"
	replayHandler "github.com/zixuanli/edge-sim/backend/internal/handler/replay"
	sessionHandler "github.com/zixuanli/edge-sim/backend/internal/handler/session"
	middlewarePkg "github.com/zixuanli/edge-sim/backend/internal/middleware"
	personaModel "github.com/zixuanli/edge-sim/backend/internal/model/persona"
	replayService "github.com/zixuanli/edge-sim/backend/internal/service/replay"
	sessionService "github.com/zixuanli/edge-sim/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, sessions *sessionService.Service, executor *replayService.Executor, replayCfg config.ReplayConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(personas).RegisterRoutes(api)
		replayHandler.New(executor, personas, replayCfg).RegisterRoutes(api)
	})

	// The websocket endpoint sits outside /api, mirroring the client protocol.
	sessionHandler.New(sessions).RegisterRoutes(r)

	return r
}
