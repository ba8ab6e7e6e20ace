// Package web serves a read-only JSON API over the ledger, the activity log
// and the device registration.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

const apiVersion = "1.0.0"

type Server struct {
	server *http.Server
	log    *slog.Logger
}

// NewRouter mounts the API on a chi router with request logging and panic
// recovery.
func NewRouter(h *Handler, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(requestLogger(log))
	mux.Use(middleware.Recoverer)

	config := huma.DefaultConfig("ShiftLedger API", apiVersion)
	config.Info.Description = "Read-only view of the local work ledger."
	api := humachi.New(mux, config)
	h.SetupRoutes(api)

	return mux
}

func NewServer(host string, port int, handler http.Handler, log *slog.Logger) *Server {
	addr := fmt.Sprintf("%s:%d", host, port)
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log.With("component", "web"),
	}
}

func (s *Server) Start() error {
	s.log.Info("starting web server", "url", "http://"+s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "web server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "error shutting down web server")
	}
	return nil
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
