package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/database"
	"github.com/npezzotti/go-watchparty/internal/server"
)

type App struct {
	log            zerolog.Logger
	db             database.PartyRepository
	cs             *server.Coordinator
	srv            *http.Server
	allowedOrigins []string
}

// NewApp builds the REST surface, the websocket endpoint and, when metrics is
// non-nil, the metrics endpoint.
func NewApp(logger zerolog.Logger, cs *server.Coordinator, db database.PartyRepository, metrics http.Handler, cfg *config.Config) *App {
	s := &App{
		log:            logger.With().Str("module", "api").Logger(),
		db:             db,
		cs:             cs,
		allowedOrigins: cfg.AllowedOrigins,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthCheck)
	r.Get("/ws", s.serveWs)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api/parties", func(r chi.Router) {
		r.Use(noCache)
		r.Get("/", s.listParties)
		r.Post("/", s.createParty)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.getParty)
			r.Post("/end", s.endParty)
			r.Post("/seat", s.reserveSeat)
			r.Get("/playback", s.getPlayback)
			r.Post("/playback", s.setPlayback)
			r.Get("/messages", s.getMessages)
		})
	})

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(r)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *App) Handler() http.Handler {
	return s.srv.Handler
}

func (s *App) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
