package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bidkeeper/internal/auction"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Server answers liveness probes and exposes the same diagnostics the
// !diagnostics command shows, read-only and without touching discord
type Server struct {
	engine    *auction.Engine
	port      int
	startedAt time.Time
}

func NewServer(engine *auction.Engine, port int) *Server {
	return &Server{engine: engine, port: port, startedAt: time.Now()}
}

func (s *Server) Run(ctx context.Context) error {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.startedAt).Round(time.Second).String(),
			"state":  s.engine.Status().State,
		})
	})
	e.GET("/diagnostics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.engine.Diagnostics())
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Msg(fmt.Sprintf("Health server shutdown: %s", err))
		}
	}()

	log.Info().Msg(fmt.Sprintf("Health server listening on :%d", s.port))
	if err := e.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
