package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const UserKey contextKey = "user"

// BearerToken extracts the token from an Authorization header value. The
// second return is false when the header is missing or lacks the Bearer
// prefix.
func BearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// RequireUser rejects requests without a valid self-issued bearer token and
// puts the verified identity on the request context.
func RequireUser(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := BearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			userinfo, err := v.VerifySelfIssued(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			setUser(c, userinfo)
			return next(c)
		}
	}
}

// OptionalUser verifies a bearer token when one is present and otherwise lets
// the request through anonymously. A malformed or invalid token still fails.
func OptionalUser(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}
			token, ok := BearerToken(header)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			userinfo, err := v.VerifySelfIssued(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			setUser(c, userinfo)
			return next(c)
		}
	}
}

func setUser(c echo.Context, userinfo *UserInfo) {
	ctx := context.WithValue(c.Request().Context(), UserKey, userinfo)
	c.SetRequest(c.Request().WithContext(ctx))
}

// UserFromContext returns the verified caller, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *UserInfo {
	u, _ := ctx.Value(UserKey).(*UserInfo)
	return u
}
