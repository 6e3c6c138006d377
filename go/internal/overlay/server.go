package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/debatelive/go/internal/live/session"
)

// ViewSource is satisfied by *session.Session
type ViewSource interface {
	View() session.View
	OnChange(fn func()) func()
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	Connection     ConnectionConfig
}

func DefaultConfig(addr string) Config {
	return Config{
		Addr:           addr,
		AllowedOrigins: []string{"*"},
		Connection:     DefaultConnectionConfig(),
	}
}

// Server re-broadcasts a session's view to local stream overlays
type Server struct {
	config      Config
	source      ViewSource
	connections *ConnectionManager
}

func NewServer(config Config, source ViewSource) *Server {
	return &Server{
		config:      config,
		source:      source,
		connections: NewConnectionManager(config.Connection),
	}
}

// Handler returns the routes wrapped in CORS and h2c
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/live/state", s.handleState)
	mux.HandleFunc("GET /ws/overlay", s.handleOverlay)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Warn().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// Run serves until ctx is done. Every session change is pushed to the
// connected overlays.
func (s *Server) Run(ctx context.Context) error {
	defer s.Attach(ctx)()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("overlay server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Attach starts broadcasting source changes. The returned func detaches.
func (s *Server) Attach(ctx context.Context) func() {
	go s.connections.Start(ctx)
	return s.source.OnChange(func() {
		s.connections.Broadcast(s.source.View())
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.View()); err != nil {
		log.Warn().Err(err).Msg("failed to write state response")
	}
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes its own error response
	if err := s.connections.UpgradeConnection(w, r, s.source.View()); err != nil {
		log.Warn().Err(err).Msg("failed to upgrade overlay connection")
	}
}
