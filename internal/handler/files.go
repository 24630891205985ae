package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"fileserver/internal/model"
	"fileserver/internal/store"
)

// HandleListFiles returns the newest resources. Requires read scope.
func (h *Handler) HandleListFiles(c echo.Context) error {
	if _, err := h.requireToken(c, model.Scopes{model.ScopeRead}); err != nil {
		return err
	}

	resources, err := h.store.ListResources(c.Request().Context(), 100)
	if err != nil {
		log.Printf("Error: failed to list resources: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	items := make([]map[string]any, 0, len(resources))
	for i := range resources {
		items = append(items, resourceJSON(&resources[i], false))
	}
	return c.JSON(http.StatusOK, items)
}

// HandleFileMeta returns full metadata for one resource. Requires read
// scope.
func (h *Handler) HandleFileMeta(c echo.Context) error {
	if _, err := h.requireToken(c, model.Scopes{model.ScopeRead}); err != nil {
		return err
	}

	res, err := h.store.GetResource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to get resource: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, resourceJSON(res, true))
}

// HandleSignedURL mints a time-limited download URL for a resource.
// The URL itself then needs no token.
func (h *Handler) HandleSignedURL(c echo.Context) error {
	if _, err := h.requireToken(c, model.Scopes{model.ScopeRead}); err != nil {
		return err
	}

	res, err := h.store.GetResource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to get resource: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	expiresAt := time.Now().Add(h.cfg.SignedURLTTL()).Unix()
	sig, err := h.signer.Sign(res.ID, expiresAt)
	if err != nil {
		log.Printf("Error: failed to sign download URL: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"download_url": h.downloadURL(res.ID, expiresAt, sig),
		"expires_at":   expiresAt,
	})
}

// HandleEmbed redirects to a short-lived signed URL, letting media tags
// reference a token-gated endpoint without carrying the token into the
// browser.
func (h *Handler) HandleEmbed(c echo.Context) error {
	if _, err := h.requireToken(c, model.Scopes{model.ScopeRead}); err != nil {
		return err
	}

	res, err := h.store.GetResource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to get resource: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	expiresAt := time.Now().Add(h.cfg.EmbedTTL()).Unix()
	sig, err := h.signer.Sign(res.ID, expiresAt)
	if err != nil {
		log.Printf("Error: failed to sign embed URL: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=60")
	return c.Redirect(http.StatusFound, h.downloadURL(res.ID, expiresAt, sig))
}

func (h *Handler) downloadURL(id string, expiresAt int64, sig string) string {
	base := strings.TrimSuffix(h.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/api/files/%s/download?expiresAt=%d&sig=%s", base, id, expiresAt, sig)
}

// resourceJSON builds the API representation. The summary form is used
// for listings; the full form adds the original name and digest. The
// storage path never leaves the server.
func resourceJSON(r *model.Resource, full bool) map[string]any {
	item := map[string]any{
		"id":         r.ID,
		"title":      r.Title,
		"mime_type":  r.MimeType,
		"size_bytes": r.SizeBytes,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Year != nil {
		item["year"] = *r.Year
	}
	if full {
		item["original_name"] = r.OriginalName
		item["checksum_sha256"] = r.ChecksumSHA256
	}
	return item
}
