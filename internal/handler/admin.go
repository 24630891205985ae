package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"fileserver/internal/store"
)

const sessionCookieName = "admin_session"

// sessionStore keeps the set of live admin session ids in memory.
// Sessions do not survive a restart, which is acceptable for the
// single-admin surface.
type sessionStore struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSessionStore() *sessionStore {
	return &sessionStore{ids: make(map[string]struct{})}
}

func (s *sessionStore) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *sessionStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// HandleAdminLogin starts an admin session when the presented password
// matches the configured bcrypt hash.
func (h *Handler) HandleAdminLogin(c echo.Context) error {
	if h.cfg.AdminPasswordHash == "" {
		return c.String(http.StatusForbidden, "Admin login is disabled")
	}

	password := c.FormValue("password")
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(password)); err != nil {
		log.Printf("Admin login failed from %s", c.RealIP())
		return c.String(http.StatusUnauthorized, "Invalid credentials")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("Error: failed to generate session id: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}
	sessionID := hex.EncodeToString(buf)
	h.sessions.add(sessionID)

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	log.Printf("Admin logged in from %s", c.RealIP())
	return c.String(http.StatusOK, "Logged in")
}

// HandleAdminLogout ends the current admin session.
func (h *Handler) HandleAdminLogout(c echo.Context) error {
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		h.sessions.remove(cookie.Value)
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.String(http.StatusOK, "Logged out")
}

// isAdminAuthenticated checks if the request carries a live admin session
func (h *Handler) isAdminAuthenticated(c echo.Context) bool {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	return h.sessions.has(cookie.Value)
}

// HandleAdminFileList lists all resources for the admin surface.
func (h *Handler) HandleAdminFileList(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	resources, err := h.store.ListResources(c.Request().Context(), 1000)
	if err != nil {
		log.Printf("Error: failed to list resources: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	items := make([]map[string]any, 0, len(resources))
	for i := range resources {
		items = append(items, resourceJSON(&resources[i], true))
	}
	return c.JSON(http.StatusOK, items)
}

// HandleAdminFileUpdate edits a resource's title and year.
func (h *Handler) HandleAdminFileUpdate(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return c.String(http.StatusBadRequest, "Title is required")
	}

	var year *int
	if yearStr := c.FormValue("year"); yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil || y < 0 {
			return c.String(http.StatusBadRequest, "Invalid year")
		}
		year = &y
	}

	id := c.Param("id")
	if err := h.store.UpdateResource(c.Request().Context(), id, title, year); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, "File not found")
		}
		log.Printf("Error: failed to update resource %s: %v", id, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.String(http.StatusOK, "File updated")
}

// HandleAdminFileDelete removes a resource's bytes and record as one
// logical unit. Byte removal is best-effort: if it fails the record is
// still deleted, orphaning bytes rather than leaving a dangling record.
func (h *Handler) HandleAdminFileDelete(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	id := c.Param("id")
	res, err := h.store.GetResource(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to get resource %s: %v", id, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	targetDir := filepath.Join(h.cfg.StorageDir, res.ID)
	if err := os.RemoveAll(targetDir); err != nil {
		log.Printf("Warning: failed to remove bytes for %s: %v", res.ID, err)
	}

	if err := h.store.DeleteResource(c.Request().Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("Error: failed to delete resource record %s: %v", id, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	log.Printf("File deleted: %s by admin from %s", id, c.RealIP())
	return c.String(http.StatusOK, "File deleted")
}

// HandleAdminStream serves a resource to an authenticated admin session
// for preview, with the same conditional and range semantics as the
// public download path but no token or signature needed.
func (h *Handler) HandleAdminStream(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	res, err := h.store.GetResource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to get resource: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return h.serveResource(c, res)
}
