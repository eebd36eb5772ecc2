package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// newEcho creates the Echo instance with CORS, panic recovery, slog access
// logging, and the JSON error envelope.
func newEcho(frontendURL string, production bool, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(production, log)

	var origins []string
	if frontendURL != "" {
		origins = []string{frontendURL}
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				log.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	return e
}

type statusCoder interface {
	HTTPStatusCode() int
}

func errorHandler(production bool, log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := err.Error()

		var he *echo.HTTPError
		var sc statusCoder
		switch {
		case errors.As(err, &he):
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			if code == http.StatusNotFound {
				msg = "Not found"
			}
		case errors.As(err, &sc):
			if s := sc.HTTPStatusCode(); s >= 400 && s < 600 {
				code = s
			}
		}
		if msg == "" {
			msg = "Internal server error"
		}

		body := map[string]any{"error": msg}
		if code >= http.StatusInternalServerError {
			log.Error("unhandled error", "path", c.Request().URL.Path, "error", err)
			if !production {
				body["stack"] = string(debug.Stack())
			}
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}
