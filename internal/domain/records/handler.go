package records

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/datasequence/datasequence/internal/platform/auth"
	"github.com/datasequence/datasequence/internal/platform/db"
)

type Handler struct {
	svc  *Service
	pool db.TxBeginner
}

func NewHandler(svc *Service, pool db.TxBeginner) *Handler {
	return &Handler{svc: svc, pool: pool}
}

// RegisterRoutes binds the first-party record endpoints. consentGate wraps
// the cross-user share endpoint; the other two carry their own caller auth.
func (h *Handler) RegisterRoutes(api *echo.Group, verifier *auth.Verifier, consentGate echo.MiddlewareFunc) {
	api.POST("/records", h.Write, auth.OptionalUser(verifier))
	api.GET("/records", h.Read, auth.RequireUser(verifier))
	api.GET("/:patient/records", h.Share, consentGate)
}

type recordsRequest struct {
	Records []*HealthRecord `json:"records"`
}

type recordsResponse struct {
	Records []*HealthRecord `json:"records"`
}

func (h *Handler) Write(c echo.Context) error {
	var req recordsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var uid *string
	if user := auth.UserFromContext(c.Request().Context()); user != nil {
		uid = &user.ID
	}

	err := db.WithTx(c.Request().Context(), h.pool, func(ctx context.Context) error {
		return h.svc.Write(ctx, uid, req.Records)
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to write records")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) Read(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	items, err := h.svc.ListByUser(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read records")
	}
	return c.JSON(http.StatusOK, recordsResponse{Records: items})
}

// Share serves records for another patient; the consent middleware has
// already replaced the caller identity with the shared patient's identity.
func (h *Handler) Share(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user == nil {
		return echo.NewHTTPError(http.StatusForbidden)
	}
	items, err := h.svc.ListByUser(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read records")
	}
	return c.JSON(http.StatusOK, recordsResponse{Records: items})
}
