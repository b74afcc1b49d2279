package httpserver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/gorilla/mux"
	"github.com/zeebo/blake3"
)

const cacheControl = "public, max-age=3600"

func (s *Server) handlePathToken(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveFile(w, r, mux.Vars(r)["token"], mode)
	}
}

// handleRoot renders the home page for a bare GET and delivers by query
// otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.RawQuery == "" {
		compress(http.HandlerFunc(s.renderHome)).ServeHTTP(w, r)
		return
	}
	s.handleQuery(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" {
		mode = common.ModeAttachment
	}
	s.serveFile(w, r, q.Get("file"), mode)
}

// serveFile validates the request, resolves the token and streams the
// payload. Nothing is fetched from the backend until every check passed.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, token, mode string) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		s.writeError(w, r, common.ErrMethodNotAllowed)
		return
	}
	if token == "" {
		s.writeError(w, r, common.ErrMissingParameter)
		return
	}
	if !common.ValidMode(mode) {
		s.writeError(w, r, common.ErrInvalidMode)
		return
	}

	id, err := s.retrieval.Decode(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.allow(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.retrieval.ResolveID(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rangeHeader := r.Header.Get("Range")
	partial := common.PartialMode(mode)

	if err := s.checkSize(info, partial); err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	setCORS(h)
	etag := etagFor(info)
	h.Set("ETag", etag)
	h.Set("Cache-Control", cacheControl)

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		s.metrics.cacheHits.Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	var window *rangex.Window
	if rangeHeader != "" && partial {
		win, err := rangex.ResolveChunk(rangeHeader, info.Size, s.cfg.RangeChunkSize)
		if err != nil {
			s.writeRangeError(w, r, info, err)
			return
		}
		window = &win
	}

	if r.Method == http.MethodHead {
		s.writeFileHeaders(w, info, mode, window)
		return
	}

	// Open before any header is written so a backend failure can still
	// become a JSON error.
	body, err := s.retrieval.Open(ctx, info, window)
	if err != nil {
		s.writeRangeError(w, r, info, err)
		return
	}
	defer body.Close()

	s.writeFileHeaders(w, info, mode, window)

	if window == nil || window.Start == 0 {
		s.retrieval.RecordDownload(ctx, id)
	}

	n, err := io.Copy(w, body)
	s.metrics.bytesSent.WithLabelValues(mode).Add(float64(n))
	if err != nil {
		s.logger.Debug(ctx, "transfer interrupted", "message_id", id, "bytes", n, "error", err, "request_id", requestID(ctx))
	}
}

// allow consults the rate limiter. A limiter failure lets the request
// through.
func (s *Server) allow(r *http.Request) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		s.logger.Warn(r.Context(), "rate limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		return common.ErrRateLimited
	}
	return nil
}

// writeRangeError is writeError plus the unsatisfied Content-Range header
// when err is a range failure, whether local or reported by the backend.
func (s *Server) writeRangeError(w http.ResponseWriter, r *http.Request, info *models.FileInfo, err error) {
	if errors.Is(err, common.ErrRangeNotSatisfiable) {
		w.Header().Set("Content-Range", rangex.Unsatisfied(info.Size))
	}
	s.writeError(w, r, err)
}

func (s *Server) checkSize(info *models.FileInfo, streaming bool) error {
	if s.cfg.MaxUploadSize > 0 && info.Size > s.cfg.MaxUploadSize {
		return fmt.Errorf("%w: %d bytes over the %d byte ceiling", common.ErrSizeExceeded, info.Size, s.cfg.MaxUploadSize)
	}
	if streaming && s.cfg.MaxStreamSize > 0 && info.Size > s.cfg.MaxStreamSize {
		return fmt.Errorf("%w: %d bytes over the %d byte stream ceiling", common.ErrSizeExceeded, info.Size, s.cfg.MaxStreamSize)
	}
	return nil
}

func (s *Server) writeFileHeaders(w http.ResponseWriter, info *models.FileInfo, mode string, window *rangex.Window) {
	h := w.Header()
	h.Set("Content-Type", contentType(info))
	h.Set("Content-Disposition", contentDisposition(mode, info.Name))
	h.Set("Accept-Ranges", "bytes")

	if window != nil {
		h.Set("Content-Range", window.ContentRange())
		h.Set("Content-Length", strconv.FormatInt(window.Length(), 10))
		w.WriteHeader(http.StatusPartialContent)
		return
	}
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func contentType(info *models.FileInfo) string {
	if info.MimeType == "" {
		return "application/octet-stream"
	}
	return info.MimeType
}

// contentDisposition renders the header for mode; stream is sent as
// inline.
func contentDisposition(mode, name string) string {
	disposition := common.ModeAttachment
	if common.PartialMode(mode) {
		disposition = common.ModeInline
	}
	if name == "" {
		return disposition
	}
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": name}); v != "" {
		return v
	}
	return disposition
}

// etagFor derives a strong validator from the identity of the payload.
func etagFor(info *models.FileInfo) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%d/%s/%d", info.MessageID, info.FileID, info.Size)))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// origin is the scheme and host the request arrived on.
func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	return scheme + "://" + r.Host
}

func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/")
	}
	return origin(r)
}
