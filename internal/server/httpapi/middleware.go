package httpapi

import (
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDKey = "request_id"

// requestID propagates X-Request-Id, generating one when absent.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(common.RequestIDHeaderName)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(common.RequestIDHeaderName, id)
			c.Set(requestIDKey, id)
			return next(c)
		}
	}
}

func accessLog(logger logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Debug(c.Request().Context(), "http request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"request_id", c.Get(requestIDKey),
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// authenticate attaches the gate result to the request context. It never
// rejects.
func authenticate(g *gate.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := g.Decorate(req.Context(), req.Header.Get(common.AuthorizationHeaderName))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// requireAuth rejects requests without an authenticated principal.
func requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := gate.Require(c.Request().Context()); err != nil {
				return err
			}
			return next(c)
		}
	}
}
