package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/uartframe/internal/link"
	"github.com/danmuck/uartframe/internal/observability"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/danmuck/uartframe/internal/scan"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Link is the part of link.Service the status API drives.
type Link interface {
	Name() string
	Status() link.Status
	Send(payload []byte) error
	SendText(line string) error
	SendTextFrame(payload string) error
	ClearError() *packet.FramingError
}

var _ Link = (*link.Service)(nil)

// Server exposes link status, metrics and foreground sends over HTTP.
type Server struct {
	Addr     string
	Appeared time.Time

	link    Link
	scanner *scan.Scanner
	router  *gin.Engine
}

func Appear(addr string, l Link, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(l.Name()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Addr:     addr,
		Appeared: time.Now(),
		link:     l,
		router:   r,
	}
}

// AttachScanner exposes a scan buffer under /scan.
func (s *Server) AttachScanner(sc *scan.Scanner) {
	s.scanner = sc
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
