package metriport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/datasequence/datasequence/internal/platform/auth"
	"github.com/datasequence/datasequence/internal/platform/db"
	"github.com/datasequence/datasequence/internal/platform/observability"
)

type Handler struct {
	svc    *Service
	client *Client
	pool   db.TxBeginner
	log    zerolog.Logger
}

func NewHandler(svc *Service, client *Client, pool db.TxBeginner, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, client: client, pool: pool, log: log}
}

// RegisterRoutes binds the aggregator endpoints. webhookGate authenticates
// webhook deliveries by shared key; consentGate handles the cross-user share
// endpoint.
func (h *Handler) RegisterRoutes(g *echo.Group, verifier *auth.Verifier, webhookGate, consentGate echo.MiddlewareFunc) {
	g.POST("/webhook", h.Webhook, webhookGate)
	g.POST("/connect-token", h.ConnectToken, auth.RequireUser(verifier))
	g.GET("/records", h.Records, auth.RequireUser(verifier))
	g.GET("/:patient/records", h.Share, consentGate)
}

// RequireWebhookKey compares the aggregator's key header against the
// configured shared secret. A missing or unconfigured secret fails closed.
func RequireWebhookKey(header, key string, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := c.Request().Header.Get(header)
			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				log.Warn().Msg("webhook auth key verification failed")
				return echo.NewHTTPError(http.StatusUnauthorized)
			}
			return next(c)
		}
	}
}

func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	// Ping control messages are answered synchronously and never reach
	// normalization or storage.
	if pingRaw, ok := probe["ping"]; ok {
		var ping string
		if err := json.Unmarshal(pingRaw, &ping); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed ping")
		}
		observability.RecordWebhookEvent(observability.OutcomePing)
		return c.JSON(http.StatusOK, map[string]string{"pong": ping})
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	err = db.WithTx(c.Request().Context(), h.pool, func(ctx context.Context) error {
		return h.svc.ProcessMessage(ctx, &msg)
	})
	if err != nil {
		h.log.Error().Err(err).Msg("webhook processing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process webhook")
	}
	return c.NoContent(http.StatusOK)
}

type connectTokenRequest struct {
	UserID string `json:"userId"`
}

// ConnectToken registers the caller's app user with Metriport and fetches a
// connect token, passing upstream errors through untouched.
func (h *Handler) ConnectToken(c echo.Context) error {
	var req connectTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	ctx := c.Request().Context()

	userResp, err := h.client.CreateUser(ctx, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("metriport user creation failed")
		return echo.NewHTTPError(http.StatusBadGateway, "aggregator unavailable")
	}
	if !userResp.OK() {
		return c.JSONBlob(userResp.StatusCode, userResp.Body)
	}

	metriportUserID, err := userResp.UserID()
	if err != nil {
		h.log.Error().Err(err).Msg("unexpected metriport user response")
		return echo.NewHTTPError(http.StatusBadGateway, "unexpected aggregator response")
	}

	tokenResp, err := h.client.ConnectToken(ctx, metriportUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("metriport connect token fetch failed")
		return echo.NewHTTPError(http.StatusBadGateway, "aggregator unavailable")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(tokenResp.Body, &payload); err != nil {
		return c.JSONBlob(tokenResp.StatusCode, tokenResp.Body)
	}
	payload["metriportUserId"] = metriportUserID
	return c.JSON(tokenResp.StatusCode, payload)
}

type recordsResponse struct {
	Records []*ActivityRecord `json:"records"`
}

func (h *Handler) Records(c echo.Context) error {
	metriportUserID := c.QueryParam("metriportUserId")
	if metriportUserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "metriportUserId is required")
	}
	items, err := h.svc.ListByUser(c.Request().Context(), metriportUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read records")
	}
	return c.JSON(http.StatusOK, recordsResponse{Records: items})
}

// Share serves aggregator records for a consenting patient; the consent
// middleware has already authorized the caller.
func (h *Handler) Share(c echo.Context) error {
	metriportUserID := c.QueryParam("metriportUserId")
	if metriportUserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "metriportUserId is required")
	}
	items, err := h.svc.ListByUser(c.Request().Context(), metriportUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read records")
	}
	return c.JSON(http.StatusOK, recordsResponse{Records: items})
}
