package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"fileserver/internal/metrics"
	"fileserver/internal/model"
	"fileserver/internal/store"
	"fileserver/internal/token"
)

const streamBufferSize = 64 * 1024

// HandleDownload serves a resource's bytes. The request is accepted if
// it carries either a valid signature (expiresAt + sig query params) or
// a bearer token with the read scope; only one of the two needs to
// succeed. The external rejection response never distinguishes the
// sub-cause.
func (h *Handler) HandleDownload(c echo.Context) error {
	ctx := c.Request().Context()

	res, err := h.store.GetResource(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return c.String(http.StatusNotFound, "File not found")
	}
	if err != nil {
		log.Printf("Error: failed to resolve resource: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	authorized, reason := h.authorizeDownload(c, res.ID)
	if !authorized {
		metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		metrics.AuthRejectionsTotal.WithLabelValues(reason).Inc()
		log.Printf("Download rejected (%s): %s from %s", reason, res.ID, c.RealIP())
		if reason == "no_credentials" {
			return c.String(http.StatusUnauthorized, "Unauthorized")
		}
		return c.String(http.StatusForbidden, "Invalid or expired signature")
	}

	return h.serveResource(c, res)
}

// authorizeDownload checks the signature path first, then the bearer
// token path. The returned reason is the first failure cause and is
// only used internally.
func (h *Handler) authorizeDownload(c echo.Context, resourceID string) (bool, string) {
	reason := ""

	expStr := c.QueryParam("expiresAt")
	sig := c.QueryParam("sig")
	if expStr != "" || sig != "" {
		exp, err := strconv.ParseInt(expStr, 10, 64)
		if err != nil {
			reason = "malformed_signature"
		} else if h.signer.Verify(resourceID, exp, sig, time.Now().Unix()) {
			return true, ""
		} else {
			reason = "invalid_signature"
		}
	}

	if raw := bearerSecret(c); raw != "" {
		_, err := h.authority.Authorize(c.Request().Context(), raw, model.Scopes{model.ScopeRead})
		if err == nil {
			return true, ""
		}
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			reason = string(authErr.Reason)
		} else {
			log.Printf("Error: token authorization failed: %v", err)
			reason = "store_error"
		}
	} else if reason == "" {
		reason = "no_credentials"
	}

	return false, reason
}

// serveResource streams the resource honoring conditional and range
// request semantics. Callers must have authorized the request already.
func (h *Handler) serveResource(c echo.Context, res *model.Resource) error {
	file, err := os.Open(res.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			// Record exists but bytes are gone: data-consistency error,
			// surfaced to the caller as plain absence.
			metrics.IntegrityInconsistenciesTotal.Inc()
			metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
			log.Printf("Error: integrity inconsistency: bytes missing for resource %s at %s", res.ID, res.StoragePath)
			return c.String(http.StatusNotFound, "File not found")
		}
		log.Printf("Error: failed to open %s: %v", res.StoragePath, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		log.Printf("Error: failed to stat %s: %v", res.StoragePath, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	etag := `"` + res.ChecksumSHA256 + `"`
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, res.MimeType)
	header.Set("Accept-Ranges", "bytes")
	header.Set("ETag", etag)
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	header.Set("Cache-Control", "public, max-age=86400")
	if shouldDisplayInline(res.MimeType) {
		header.Set("Content-Disposition", `inline; filename="`+res.OriginalName+`"`)
	} else {
		header.Set("Content-Disposition", `attachment; filename="`+res.OriginalName+`"`)
	}

	if conditionalMatch(c.Request(), etag, info.ModTime()) {
		metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeNotModified).Inc()
		c.Response().WriteHeader(http.StatusNotModified)
		return nil
	}

	if rangeHeader := c.Request().Header.Get("Range"); rangeHeader != "" {
		if start, end, ok, err := parseRange(rangeHeader, info.Size()); err != nil {
			header.Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size()))
			metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			return c.String(http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable")
		} else if ok {
			return h.servePartial(c, file, start, end, info.Size())
		}
		// Unrecognized range unit: fall through and serve the full body.
	}

	header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	c.Response().WriteHeader(http.StatusOK)

	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(c.Response(), file, buf); err != nil {
		// Mid-stream failure: the connection is gone or the disk read
		// failed. Nothing is retried; the client detects truncation via
		// Content-Length.
		log.Printf("Warning: transfer aborted for %s: %v", res.ID, err)
		return err
	}

	metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeServedFull).Inc()
	log.Printf("File served: %s (%d bytes) to %s", res.ID, info.Size(), c.RealIP())
	return nil
}

// servePartial streams the byte range [start, end] with partial-content
// status and a Content-Range descriptor.
func (h *Handler) servePartial(c echo.Context, file *os.File, start, end, size int64) error {
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		log.Printf("Error: failed to seek: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	length := end - start + 1
	header := c.Response().Header()
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(length, 10))
	c.Response().WriteHeader(http.StatusPartialContent)

	if _, err := io.CopyN(c.Response(), file, length); err != nil {
		log.Printf("Warning: range transfer aborted: %v", err)
		return err
	}

	metrics.DeliveriesTotal.WithLabelValues(metrics.OutcomeServedPartial).Inc()
	return nil
}

// conditionalMatch reports whether the client's cached copy is current.
// If-None-Match takes precedence over If-Modified-Since; the entity tag
// is the stored content digest, a strong validator.
func conditionalMatch(req *http.Request, etag string, modTime time.Time) bool {
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			candidate = strings.TrimPrefix(candidate, "W/")
			if candidate == "*" || candidate == etag {
				return true
			}
		}
		return false
	}

	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := time.Parse(http.TimeFormat, ims); err == nil {
			if !modTime.Truncate(time.Second).After(t) {
				return true
			}
		}
	}

	return false
}

// parseRange parses a single-range bytes= header against the given
// size. ok=false means the header should be ignored (unknown unit); a
// non-nil error means the range is unsatisfiable. Multiple ranges in
// one request are rejected, single-range support is sufficient.
func parseRange(header string, size int64) (start, end int64, ok bool, err error) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false, nil
	}

	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return 0, 0, false, fmt.Errorf("multiple ranges not supported")
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false, fmt.Errorf("invalid range format")
	}

	switch {
	case startStr == "":
		// Suffix range: last n bytes.
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, false, fmt.Errorf("invalid suffix length")
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case endStr == "":
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid range start")
		}
		end = size - 1
	default:
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid range start")
		}
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid range end")
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start < 0 || start >= size || start > end {
		return 0, 0, false, fmt.Errorf("range not satisfiable")
	}

	return start, end, true, nil
}

// shouldDisplayInline determines if the content should be displayed inline in the browser
func shouldDisplayInline(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "image/") ||
		contentType == "application/pdf" ||
		strings.HasPrefix(contentType, "text/")
}
