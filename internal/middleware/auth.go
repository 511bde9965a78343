package middleware

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/domain"
)

// UserContextKey is where the authenticated user is stored on the echo context.
const UserContextKey = "user"

// SessionName is the cookie session holding the auth token.
const SessionName = "pulse_session"

// sessionTokenKey is the session value carrying the SurrealDB access token.
const sessionTokenKey = "token"

// Auth creates a middleware that protects routes requiring authentication.
// It resolves the session cookie to a verified user before any handler --
// including the websocket upgrade -- runs. The handshake therefore never
// trusts a client-claimed identity.
func Auth(users domain.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(SessionName, c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			token, ok := sess.Values[sessionTokenKey].(string)
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			user, err := users.Authenticate(c.Request().Context(), token)
			if err != nil || user == nil {
				// Expired or forged token; drop the session cookie with it.
				sess.Options.MaxAge = -1
				_ = sess.Save(c.Request(), c.Response())
				return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
			}

			c.Set(UserContextKey, user)
			return next(c)
		}
	}
}

// CurrentUser retrieves the authenticated user placed on the context by Auth.
func CurrentUser(c echo.Context) (*domain.User, error) {
	user, ok := c.Get(UserContextKey).(*domain.User)
	if !ok || user == nil || user.ID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return user, nil
}
