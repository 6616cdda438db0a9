package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger logs one structured line per request.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			evt := logger.Info()
			if res.Status >= 500 {
				evt = logger.Error()
			} else if res.Status >= 400 {
				evt = logger.Warn()
			}

			requestID, _ := c.Get(RequestIDKey).(string)

			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", requestID).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
