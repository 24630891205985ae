package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"fileserver/internal/model"
	"fileserver/internal/store"
)

// HandleTokenList lists all API tokens. Secret hashes never leave the
// server.
func (h *Handler) HandleTokenList(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	tokens, err := h.store.ListTokens(c.Request().Context())
	if err != nil {
		log.Printf("Error: failed to list tokens: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, tokens)
}

// HandleTokenCreate issues a new API token. The raw secret appears in
// this response exactly once and cannot be retrieved again.
func (h *Handler) HandleTokenCreate(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return c.String(http.StatusBadRequest, "Name is required")
	}

	scopes := model.ParseScopes(c.FormValue("scopes"))

	var ttl time.Duration
	if daysStr := c.FormValue("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < 0 {
			return c.String(http.StatusBadRequest, "Invalid days value")
		}
		ttl = time.Duration(days) * 24 * time.Hour
	}

	raw, tok, err := h.authority.Issue(c.Request().Context(), name, scopes, ttl)
	if err != nil {
		log.Printf("Error: failed to issue token: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	log.Printf("Token issued: %s (%s) scopes=%s", tok.ID, tok.Name, tok.Scopes)

	response := map[string]any{
		"id":     tok.ID,
		"name":   tok.Name,
		"scopes": tok.Scopes,
		"token":  raw,
		"note":   "Store this token securely. It will not be shown again.",
	}
	if tok.ExpiresAt != nil {
		response["expires_at"] = tok.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusCreated, response)
}

// HandleTokenRevoke soft-deletes a token. Idempotent; the token fails
// authorization on its very next use.
func (h *Handler) HandleTokenRevoke(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	id := c.Param("id")
	if err := h.authority.Revoke(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, "Token not found")
		}
		log.Printf("Error: failed to revoke token %s: %v", id, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	log.Printf("Token revoked: %s", id)
	return c.String(http.StatusOK, "Token revoked")
}

// HandleTokenDelete removes a token record entirely.
func (h *Handler) HandleTokenDelete(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	id := c.Param("id")
	if err := h.store.DeleteToken(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, "Token not found")
		}
		log.Printf("Error: failed to delete token %s: %v", id, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	log.Printf("Token deleted: %s", id)
	return c.String(http.StatusOK, "Token deleted")
}
