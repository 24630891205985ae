package handler

import (
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"fileserver/internal/checksum"
	"fileserver/internal/model"
)

// HandleUpload accepts a multipart upload from an authenticated admin
// session. The ordering matters: bytes are fully written and synced and
// the digest computed before the metadata record is committed, so a
// record never becomes visible before its bytes are durable. If the
// commit fails the freshly written bytes are removed; an interrupted
// upload orphans a directory no record points to.
func (h *Handler) HandleUpload(c echo.Context) error {
	if !h.isAdminAuthenticated(c) {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.cfg.MaxSizeToBytes())

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

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.String(http.StatusBadRequest, "File is required")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext == "" || !h.cfg.ExtensionAllowed(ext) {
		return c.String(http.StatusBadRequest, "File type not allowed")
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Printf("Error: failed to open uploaded file: %v", err)
		return c.String(http.StatusBadRequest, "Invalid upload")
	}
	defer src.Close()

	id := uuid.NewString()
	targetDir := filepath.Join(h.cfg.StorageDir, id)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		log.Printf("Error: failed to create storage directory: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	dest := filepath.Join(targetDir, "original"+ext)
	size, err := writeFile(dest, src)
	if err != nil {
		os.RemoveAll(targetDir)
		log.Printf("Error: failed to save upload: %v", err)
		return c.String(http.StatusInternalServerError, "Failed to save file")
	}
	if size == 0 {
		os.RemoveAll(targetDir)
		return c.String(http.StatusBadRequest, "Empty file")
	}

	digest, err := checksum.File(dest)
	if err != nil {
		os.RemoveAll(targetDir)
		log.Printf("Error: failed to compute checksum: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(dest); err == nil {
		contentType = mtype.String()
	}

	res := &model.Resource{
		ID:             id,
		Title:          title,
		Year:           year,
		MimeType:       contentType,
		SizeBytes:      size,
		OriginalName:   filepath.Base(fileHeader.Filename),
		StoragePath:    dest,
		ChecksumSHA256: digest,
		CreatedAt:      time.Now(),
	}

	if err := h.store.CreateResource(c.Request().Context(), res); err != nil {
		// Roll back the bytes rather than leave a record-less orphan
		// around for longer than necessary.
		os.RemoveAll(targetDir)
		log.Printf("Error: failed to store resource metadata: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	log.Printf("File uploaded: %s (%s, %d bytes) as %s", res.OriginalName, contentType, size, id)
	return c.JSON(http.StatusCreated, resourceJSON(res, true))
}

// writeFile streams r to path and syncs before returning the byte
// count.
func writeFile(path string, r io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(dst, r)
	if err != nil {
		dst.Close()
		return 0, err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		return 0, err
	}

	return size, dst.Close()
}
