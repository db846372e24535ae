// Package api is the HTTP boundary: two JSON endpoints mirroring the
// pipeline operations plus health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"numflow/internal/job"
	"numflow/internal/logging"
	"numflow/internal/telemetry"
)

// Pipeline is the subset of *pipeline.Runner the handlers call.
type Pipeline interface {
	Transform(ctx context.Context, link string) (job.Result, error)
	Inverse(ctx context.Context, transformedPath string) (job.Result, error)
}

type TransformRequest struct {
	Link      string `json:"link"`
	DriveLink string `json:"drive_link"` // accepted alias
}

type InverseRequest struct {
	TransformedPath     string `json:"transformedPath"`
	TransformedFilePath string `json:"transformed_file_path"` // accepted alias
}

type Server struct {
	e    *echo.Echo
	addr string
}

func NewServer(addr string, p Pipeline) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(logRequests(logging.With("http")))

	v1 := e.Group("/api/v1")
	v1.POST("/transform", TransformHandler(p))
	v1.POST("/inverse_transform", InverseHandler(p))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	return &Server{e: e, addr: addr}
}

func (s *Server) Handler() http.Handler { return s.e }

// Start blocks until the server stops; a clean shutdown returns nil.
func (s *Server) Start() error {
	err := s.e.Start(s.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func TransformHandler(p Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(TransformRequest)
		if err := decode(c, req); err != nil {
			return err
		}
		link := req.Link
		if link == "" {
			link = req.DriveLink
		}
		if link == "" {
			return badRequest(job.OpTransform, "link is required")
		}
		return respond(c, p.Transform)(link)
	}
}

func InverseHandler(p Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(InverseRequest)
		if err := decode(c, req); err != nil {
			return err
		}
		path := req.TransformedPath
		if path == "" {
			path = req.TransformedFilePath
		}
		if path == "" {
			return badRequest(job.OpInverse, "transformedPath is required")
		}
		return respond(c, p.Inverse)(path)
	}
}

func decode(c echo.Context, into any) error {
	ct := strings.ToLower(c.Request().Header.Get(echo.HeaderContentType))
	if ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		return badRequest("", "unexpected content type. it should be application/json")
	}
	if err := json.NewDecoder(c.Request().Body).Decode(into); err != nil {
		return badRequest("", "can not understand the requested json: "+err.Error())
	}
	return nil
}

func respond(c echo.Context, call func(context.Context, string) (job.Result, error)) func(string) error {
	return func(arg string) error {
		res, err := call(c.Request().Context(), arg)
		if err != nil {
			return echo.NewHTTPError(StatusCode(job.Classify(err)), res).SetInternal(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func badRequest(op, msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, job.Result{Operation: op, Status: job.StatusError, Message: msg})
}

// StatusCode maps a fault class onto an HTTP status.
func StatusCode(f job.Fault) int {
	switch f {
	case job.FaultNone:
		return http.StatusOK
	case job.FaultClient:
		return http.StatusBadRequest
	case job.FaultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func logRequests(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			log.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"elapsed", time.Since(begin),
				"err", err)
			return err
		}
	}
}
