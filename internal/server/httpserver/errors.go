package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
)

// errorBody is the JSON envelope of every error response.
type errorBody struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Error codes without an HTTP status of their own are sent with 404 when
// legacy status mode is on.
var legacyCodes = map[int]bool{406: true, 407: true, 408: true}

// statusFor maps an error to the code and description of the envelope.
func statusFor(err error) (int, string) {
	var be *common.BackendError
	switch {
	case errors.Is(err, common.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, common.DescMethodNotAllowed
	case errors.Is(err, common.ErrMissingParameter):
		return http.StatusNotFound, common.DescMissingParameter
	case errors.Is(err, common.ErrInvalidMode):
		return 408, common.DescInvalidMode
	case errors.Is(err, common.ErrInvalidToken):
		return 407, common.DescInvalidToken
	case errors.Is(err, common.ErrUnsupportedFileKind):
		return 406, common.DescInvalidFileType
	case errors.Is(err, common.ErrRevoked):
		return http.StatusGone, common.DescRevoked
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "Too Many Requests: rate limit exceeded"
	case errors.Is(err, common.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge, "Request Entity Too Large: file exceeds the size limit"
	case errors.Is(err, common.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable, "Requested Range Not Satisfiable"
	case errors.As(err, &be):
		return be.Code, be.Description
	case errors.Is(err, common.ErrBackendUnavailable):
		return http.StatusBadGateway, "Bad Gateway: backend unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// httpStatus picks the status line for an envelope code.
func httpStatus(code int, legacy bool) int {
	if legacy && legacyCodes[code] {
		return http.StatusNotFound
	}
	if code < 400 || code > 599 {
		return http.StatusBadGateway
	}
	return code
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Range")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, desc := statusFor(err)
	status := httpStatus(code, s.cfg.LegacyStatus)

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "code", code, "error", err, "request_id", requestID(r.Context()))
	} else {
		s.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "code", code, "error", err, "request_id", requestID(r.Context()))
	}

	setCORS(w.Header())
	writeJSON(w, status, errorBody{OK: false, ErrorCode: code, Description: desc})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
