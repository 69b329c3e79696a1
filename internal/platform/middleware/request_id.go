package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const RequestIDHeader = "X-Request-ID"

// requestIDKey is the echo context key the logger and recovery middleware
// read the id back from.
const requestIDKey = "request_id"

// RequestID propagates an incoming X-Request-ID header or generates a fresh
// one, exposing it on the echo context and the response. Webhook deliveries
// and consent checks are correlated in the logs through this id.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set(requestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
