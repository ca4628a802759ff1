// Package server - HTTP adapter exposing analysis, record read-back, backend info and metrics.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/nvr-ai/go-detect/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Records reads persisted detections back.
type Records interface {
	Get(ctx context.Context, id string) (*store.DetectionRecord, error)
	List(ctx context.Context, query store.ListQuery) (*store.Page, error)
}

// Options configures the HTTP adapter.
type Options struct {
	// RequestTimeout bounds one analysis request. Zero disables it.
	RequestTimeout time.Duration
	// MaxUploadBytes bounds the request body. Zero disables it.
	MaxUploadBytes int64
	// Gatherer serves /metrics, nil for the default registry.
	Gatherer prometheus.Gatherer
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds the echo instance with every route registered.
//
// Arguments:
//   - service: The request service.
//   - records: The record reader.
//   - opts: The adapter options.
//
// Returns:
//   - *echo.Echo: The configured server.
func New(service *dispatch.Service, records Records, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	if opts.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(opts.MaxUploadBytes, 10) + "B"))
	}
	e.Use(middleware.Recover())
	e.Use(requestLogger)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &handlers{service: service, records: records, timeout: opts.RequestTimeout}

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/detections/analyze", h.analyze)
	api.GET("/detections", h.listDetections)
	api.GET("/detections/:id", h.getDetection)
	api.GET("/models/info", h.modelInfo)

	return e
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		xlog.Info("HTTP request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"elapsed", time.Since(start))
		return nil
	}
}

// errorHandler maps the detection error taxonomy to status codes.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		xlog.Error("Request failed", "path", c.Request().URL.Path, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	switch dispatch.FailureReason(err) {
	case "validation":
		return http.StatusBadRequest
	case "configuration":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
