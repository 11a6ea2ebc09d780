package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			status := c.Response().Status
			attrs := []any{
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"uid", UID(c),
			}
			switch {
			case status >= 500:
				logger.Error("[http] request", attrs...)
			case status >= 400:
				logger.Warn("[http] request", attrs...)
			default:
				logger.Info("[http] request", attrs...)
			}
			return nil
		}
	}
}
