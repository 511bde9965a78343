package handlers

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/domain"
	"github.com/nfrund/pulse/internal/middleware"
)

// AuthHandler issues and revokes the cookie session. Account creation and
// profile management live with the authentication collaborator; this handler
// only exchanges credentials for a session.
type AuthHandler struct {
	verifier domain.CredentialVerifier
	users    domain.UserRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(verifier domain.CredentialVerifier, users domain.UserRepository) *AuthHandler {
	return &AuthHandler{verifier: verifier, users: users}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, err := h.verifier.SignIn(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return httpError(err)
	}

	user, err := h.users.Authenticate(c.Request().Context(), token)
	if err != nil {
		return httpError(err)
	}

	sess, err := session.Get(middleware.SessionName, c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable").SetInternal(err)
	}
	sess.Values["token"] = token
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save session").SetInternal(err)
	}

	return c.JSON(http.StatusOK, user.Summary())
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	sess, err := session.Get(middleware.SessionName, c)
	if err == nil {
		sess.Options.MaxAge = -1
		_ = sess.Save(c.Request(), c.Response())
	}
	return c.NoContent(http.StatusNoContent)
}
