package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestServeFile_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		legacy     bool
		wantStatus int
		wantCode   int
		wantDesc   string
	}{
		{"method not allowed", http.MethodDelete, "/?file=" + docToken, false, 405, 405, common.DescMethodNotAllowed},
		{"missing file", http.MethodGet, "/?mode=inline", false, 404, 404, common.DescMissingParameter},
		{"invalid mode", http.MethodGet, "/?file=" + docToken + "&mode=embed", false, 408, 408, common.DescInvalidMode},
		{"invalid mode legacy", http.MethodGet, "/?file=" + docToken + "&mode=embed", true, 404, 408, common.DescInvalidMode},
		{"undecodable token", http.MethodGet, "/?file=nope", false, 407, 407, common.DescInvalidToken},
		{"undecodable token legacy", http.MethodGet, "/?file=nope", true, 404, 407, common.DescInvalidToken},
		{"revoked", http.MethodGet, "/?file=" + goneToken, false, 410, 410, common.DescRevoked},
		{"backend error keeps its code", http.MethodGet, "/?file=" + downToken, false, 400, 400, "Bad Request: message to edit not found"},
		{"unknown path token", http.MethodGet, "/dl/UNKNOWN", false, 407, 407, common.DescInvalidToken},
		{"mode checked before token", http.MethodGet, "/?file=nope&mode=x", false, 408, 408, common.DescInvalidMode},
		{"unknown path falls back to query", http.MethodGet, "/favicon.ico", false, 404, 404, common.DescMissingParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.LegacyStatus = tt.legacy
			s, d := newTestServer(cfg, false)

			rec := do(t, s, tt.method, tt.target, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.False(t, body.OK)
			assert.Equal(t, tt.wantCode, body.ErrorCode)
			assert.Equal(t, tt.wantDesc, body.Description)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Zero(t, d.retrieval.opened)
		})
	}
}

func TestServeFile_UnsupportedKind(t *testing.T) {
	s, d := newTestServer(testConfig(), false)
	d.retrieval.ids["ORPHAN"] = 99

	rec := do(t, s, http.MethodGet, "/dl/ORPHAN", nil)

	assert.Equal(t, 406, rec.Code)
	assert.Equal(t, common.DescInvalidFileType, decodeError(t, rec).Description)
}

func TestServeFile_BackendCodeOutsideErrorRange(t *testing.T) {
	s, d := newTestServer(testConfig(), false)
	d.retrieval.errs[2] = &common.BackendError{Code: 302, Description: "odd"}

	rec := do(t, s, http.MethodGet, "/dl/"+docToken, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 302, decodeError(t, rec).ErrorCode)
}

func TestServeFile_OpenFailure(t *testing.T) {
	s, d := newTestServer(testConfig(), false)
	d.retrieval.openErr = common.ErrBackendUnavailable

	rec := do(t, s, http.MethodGet, "/dl/"+docToken, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Empty(t, d.retrieval.downloads)
}

func TestServeFile_Attachment(t *testing.T) {
	s, d := newTestServer(testConfig(), false)

	rec := do(t, s, http.MethodGet, "/?file="+docToken, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abcdefghij", rec.Body.String())
	h := rec.Header()
	assert.Equal(t, `attachment; filename=report.pdf`, h.Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", h.Get("Content-Type"))
	assert.Equal(t, "10", h.Get("Content-Length"))
	assert.Equal(t, "bytes", h.Get("Accept-Ranges"))
	assert.Equal(t, cacheControl, h.Get("Cache-Control"))
	assert.NotEmpty(t, h.Get("ETag"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
	assert.Equal(t, []int64{2}, d.retrieval.downloads)
}

func TestServeFile_PathRoutes(t *testing.T) {
	s, _ := newTestServer(testConfig(), false)

	rec := do(t, s, http.MethodGet, "/dl/"+videoToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=clip.mp4", rec.Header().Get("Content-Disposition"))

	rec = do(t, s, http.MethodGet, "/stream/"+videoToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inline; filename=clip.mp4", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestServeFile_StreamModeSentAsInline(t *testing.T) {
	s, _ := newTestServer(testConfig(), false)

	rec := do(t, s, http.MethodGet, "/?file="+videoToken+"&mode=stream", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inline; filename=clip.mp4", rec.Header().Get("Content-Disposition"))
}

func TestServeFile_Range(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		rangeHeader  string
		wantStatus   int
		wantBody     string
		wantRange    string
		wantLength   string
		wantDownload bool
	}{
		{"head of file", "inline", "bytes=0-4", 206, "01234", "bytes 0-4/10", "5", true},
		{"open ended", "stream", "bytes=7-", 206, "789", "bytes 7-9/10", "3", false},
		{"attachment ignores range", "attachment", "bytes=0-4", 200, "0123456789", "", "10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestServer(testConfig(), false)

			rec := do(t, s, http.MethodGet, "/?file="+videoToken+"&mode="+tt.mode, map[string]string{"Range": tt.rangeHeader})

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantRange, rec.Header().Get("Content-Range"))
			assert.Equal(t, tt.wantLength, rec.Header().Get("Content-Length"))
			assert.Equal(t, tt.wantDownload, len(d.retrieval.downloads) == 1)
		})
	}
}

func TestServeFile_RangeNotSatisfiable(t *testing.T) {
	s, d := newTestServer(testConfig(), false)

	rec := do(t, s, http.MethodGet, "/stream/"+videoToken, map[string]string{"Range": "bytes=10-15"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
	assert.Equal(t, 416, decodeError(t, rec).ErrorCode)
	assert.Zero(t, d.retrieval.opened)
}

func TestServeFile_UpstreamRangeNotSatisfiable(t *testing.T) {
	s, d := newTestServer(testConfig(), false)
	d.retrieval.openErr = common.ErrRangeNotSatisfiable

	rec := do(t, s, http.MethodGet, "/stream/"+videoToken, map[string]string{"Range": "bytes=2-5"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestServeFile_RangeChunkSize(t *testing.T) {
	cfg := testConfig()
	cfg.RangeChunkSize = 4
	s, d := newTestServer(cfg, false)

	rec := do(t, s, http.MethodGet, "/stream/"+videoToken, map[string]string{"Range": "bytes=3-"})

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "3456", rec.Body.String())
	assert.Equal(t, "bytes 3-6/10", rec.Header().Get("Content-Range"))
	require.Len(t, d.retrieval.windows, 1)
	assert.Equal(t, &rangex.Window{Start: 3, End: 6, Total: 10}, d.retrieval.windows[0])

	rec = do(t, s, http.MethodGet, "/stream/"+videoToken, map[string]string{"Range": "bytes=1-8"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "12345678", rec.Body.String())
}

func TestServeFile_SizeCeilings(t *testing.T) {
	tests := []struct {
		name       string
		maxUpload  int64
		target     string
		headers    map[string]string
		wantStatus int
	}{
		{"attachment under upload ceiling", 1000, "/dl/" + bigToken, nil, 200},
		{"attachment over upload ceiling", 400, "/dl/" + bigToken, nil, 413},
		{"inline over stream ceiling", 1000, "/stream/" + bigToken, nil, 413},
		{"attachment range between ceilings", 1000, "/dl/" + bigToken, map[string]string{"Range": "bytes=0-9"}, 200},
		{"stream range over stream ceiling", 1000, "/stream/" + bigToken, map[string]string{"Range": "bytes=0-9"}, 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxUploadSize = tt.maxUpload
			s, d := newTestServer(cfg, false)
			d.retrieval.payloads[3] = make([]byte, 500)

			rec := do(t, s, http.MethodGet, tt.target, tt.headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == 413 {
				assert.Zero(t, d.retrieval.opened, "no bytes fetched past a ceiling")
				assert.Equal(t, 413, decodeError(t, rec).ErrorCode)
			}
		})
	}
}

func TestServeFile_Head(t *testing.T) {
	s, d := newTestServer(testConfig(), false)

	rec := do(t, s, http.MethodHead, "/stream/"+videoToken, map[string]string{"Range": "bytes=2-3"})

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "bytes 2-3/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "2", rec.Header().Get("Content-Length"))
	assert.Zero(t, d.retrieval.opened)
	assert.Empty(t, d.retrieval.downloads)
}

func TestServeFile_NotModified(t *testing.T) {
	s, d := newTestServer(testConfig(), false)

	first := do(t, s, http.MethodGet, "/dl/"+docToken, nil)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec := do(t, s, http.MethodGet, "/dl/"+docToken, map[string]string{"If-None-Match": `"other", ` + etag})

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, etag, rec.Header().Get("ETag"))
	assert.Equal(t, 1, d.retrieval.opened)
}

func TestServeFile_RateLimit(t *testing.T) {
	s, d := newTestServer(testConfig(), true)

	d.limiter.allow = false
	rec := do(t, s, http.MethodGet, "/dl/"+docToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"192.0.2.1"}, d.limiter.keys)

	// Tokens that fail to decode never reach the limiter.
	do(t, s, http.MethodGet, "/?file=bad", nil)
	assert.Len(t, d.limiter.keys, 1)

	d.limiter.err = errLimiterDown
	rec = do(t, s, http.MethodGet, "/dl/"+docToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches(`"a"`, `"a"`))
	assert.True(t, etagMatches(`W/"a"`, `"a"`))
	assert.True(t, etagMatches("*", `"a"`))
	assert.False(t, etagMatches(`"b"`, `"a"`))
}

func TestContentDisposition_NonASCIIName(t *testing.T) {
	got := contentDisposition(common.ModeAttachment, "фильм.mp4")
	assert.Contains(t, got, "attachment; filename*=utf-8''")
	assert.Equal(t, "inline", contentDisposition(common.ModeStream, ""))
}

func TestOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http://example.com", origin(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com", origin(req))
}
