package emr

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/datasequence/datasequence/internal/platform/auth"
)

// RequireConsent gates access to another patient's records. The :patient path
// parameter names the target; the caller's bearer credential is resolved and
// checked against EMR consents. On success the patient's external identity
// replaces the caller identity on the request context, so downstream handlers
// read the shared patient's rows.
//
// All failure kinds collapse to a bare 403; the specific reason is only
// logged.
func RequireConsent(checker *ConsentChecker, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			patientID := c.Param("patient")
			if patientID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "patient is required")
			}

			authorization := c.Request().Header.Get("Authorization")
			if authorization == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			identity, err := checker.Check(c.Request().Context(), patientID, authorization)
			if err != nil {
				log.Warn().
					Err(err).
					Str("patient", patientID).
					Msg("consent verification failed")
				return echo.NewHTTPError(http.StatusForbidden)
			}

			ctx := context.WithValue(c.Request().Context(), auth.UserKey, &auth.UserInfo{ID: identity})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
