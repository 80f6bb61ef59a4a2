// Package serving exposes a trained churn bundle over HTTP.
//
// Routes (a trailing slash is added to every path before routing, so
// /predict and /predict/ are the same route):
//
//	GET  /          banner
//	GET  /healthz   200 with the bundle id, 503 when no bundle is loaded
//	POST /predict   classify one customer record
//	POST /retrain   train, save and swap in a new bundle
//
// Errors are answered as {"error": "..."}.
package serving

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ezoic/churn/config"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// Server is the prediction API.
type Server struct {
	e      *echo.Echo
	cfg    config.Serving
	logger log.Logger
}

// NewServer builds the router for h.
func NewServer(h *Handlers, cfg config.Serving) *Server {
	logger := log.GetLoggerWithName("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Pre(middleware.AddTrailingSlash())
	e.Use(LogRequests(logger))
	e.Use(middleware.Recover())

	var predictMW []echo.MiddlewareFunc
	if cfg.RequestTimeout > 0 {
		predictMW = append(predictMW, middleware.ContextTimeout(cfg.RequestTimeout))
	}

	e.GET("/", h.Root)
	e.GET("/healthz/", h.Health)
	e.POST("/predict/", h.Predict, predictMW...)
	e.POST("/retrain/", h.Retrain)

	return &Server{e: e, cfg: cfg, logger: logger}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve listens on cfg.Addr until ctx is done, then shuts down gracefully
// within cfg.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Serving", log.HTTPAddrKey, s.cfg.Addr)
		errc <- s.e.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		if scigoErrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return scigoErrors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("Shutting down", log.HTTPAddrKey, s.cfg.Addr)
	if err := s.e.Shutdown(sctx); err != nil {
		return scigoErrors.Wrap(err, "shutdown")
	}
	if err := <-errc; err != nil && !scigoErrors.Is(err, http.ErrServerClosed) {
		return scigoErrors.Wrap(err, "serve")
	}
	return nil
}

// LogRequests logs method, path, status and latency of every request.
func LogRequests(logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// write the response now so the logged status is final
				c.Error(err)
			}
			req := c.Request()
			fields := []any{
				log.HTTPMethodKey, req.Method,
				log.HTTPPathKey, req.URL.Path,
				log.HTTPStatusKey, c.Response().Status,
				log.HTTPLatencyKey, time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("Request failed", append(fields, "error", err)...)
			} else {
				logger.Info("Request", fields...)
			}
			return nil
		}
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if scigoErrors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
