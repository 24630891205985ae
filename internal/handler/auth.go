package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"fileserver/internal/metrics"
	"fileserver/internal/model"
	"fileserver/internal/token"
)

// bearerSecret extracts the raw bearer secret from the token query
// parameter or the Authorization header.
func bearerSecret(c echo.Context) string {
	if t := c.QueryParam("token"); t != "" {
		return t
	}
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requireToken authorizes the request for the required scopes. On
// failure the generic response has already been written and the
// returned error is always non-nil, so callers just pass it back to
// echo, which skips committed responses. The internal rejection reason
// goes to logs and metrics only.
func (h *Handler) requireToken(c echo.Context, required model.Scopes) (*model.AccessToken, error) {
	tok, err := h.authority.Authorize(c.Request().Context(), bearerSecret(c), required)
	if err == nil {
		return tok, nil
	}

	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		metrics.AuthRejectionsTotal.WithLabelValues(string(authErr.Reason)).Inc()
		log.Printf("Token rejected (%s): %s %s from %s", authErr.Reason, c.Request().Method, c.Request().URL.Path, c.RealIP())
		if authErr.Reason == token.ReasonMissing {
			c.String(http.StatusUnauthorized, "Missing token")
		} else {
			c.String(http.StatusForbidden, "Invalid token")
		}
		return nil, err
	}

	log.Printf("Error: token authorization failed: %v", err)
	c.String(http.StatusInternalServerError, "Server error")
	return nil, err
}
