// Package web is the frontend control surface: device listing, patching,
// capture toggles, reset, and scene-change push via long-poll and
// websocket.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/netsim/internal/core/services/notify"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr  string
	Scene *scene.Controller
	Bus   *notify.Bus

	ws  *wsManager
	srv *http.Server
}

func NewServer(addr string, sc *scene.Controller, bus *notify.Bus) *Server {
	s := &Server{
		Addr:  addr,
		Scene: sc,
		Bus:   bus,
	}
	s.ws = newWSManager(sc)
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.ws.start(s.Bus)

	handler := otelhttp.NewHandler(s.routes(), "netsim-web")
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("web: server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: shutdown error: %v", err)
		}
	}()

	log.Printf("web: listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
