package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the token exchange endpoint: an Apple-issued OpenID token
// in, a self-issued access token out.
type Handler struct {
	verifier *Verifier
	tokens   *TokenService
}

func NewHandler(verifier *Verifier, tokens *TokenService) *Handler {
	return &Handler{verifier: verifier, tokens: tokens}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/token", h.FetchToken)
}

func (h *Handler) FetchToken(c echo.Context) error {
	token, ok := BearerToken(c.Request().Header.Get("Authorization"))
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	userinfo, err := h.verifier.VerifyApple(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	access, err := h.tokens.Issue(userinfo.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": access})
}
