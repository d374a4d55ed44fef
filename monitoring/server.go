package monitoring

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns an echo instance exposing /metrics.
func NewServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, mw ...echo.MiddlewareFunc) {
	e := NewServer(mw...)
	srv := &http.Server{Addr: addr, Handler: e}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server: %v", err)
	}
}
