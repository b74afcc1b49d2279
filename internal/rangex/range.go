// Package rangex resolves HTTP byte-range headers against a known payload
// size.
package rangex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
)

const bytesPrefix = "bytes="

// Window is an inclusive byte interval of a payload of Total bytes.
type Window struct {
	Start int64
	End   int64
	Total int64
}

// Length is the number of bytes covered by the window.
func (w Window) Length() int64 {
	return w.End - w.Start + 1
}

// ContentRange returns the Content-Range header value for a 206 response.
func (w Window) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, w.Total)
}

// Header returns the Range request header asking for exactly this window.
func (w Window) Header() string {
	return fmt.Sprintf("bytes=%d-%d", w.Start, w.End)
}

// Unsatisfied returns the Content-Range header value for a 416 response.
func Unsatisfied(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Resolve computes the window requested by header for a payload of total
// bytes. A missing or unparseable start means 0; a missing end means the
// last byte. It returns common.ErrRangeNotSatisfiable when start >= total,
// end >= total or start > end.
func Resolve(header string, total int64) (Window, error) {
	return ResolveChunk(header, total, 0)
}

// ResolveChunk is Resolve with a chunk-size policy: an open-ended range is
// capped at chunkSize bytes. chunkSize <= 0 disables the cap.
func ResolveChunk(header string, total, chunkSize int64) (Window, error) {
	spec := strings.TrimPrefix(strings.TrimSpace(header), bytesPrefix)
	startPart, endPart, hasEnd := strings.Cut(spec, "-")

	start, err := strconv.ParseInt(strings.TrimSpace(startPart), 10, 64)
	if err != nil {
		start = 0
	}

	end := total - 1
	endPart = strings.TrimSpace(endPart)
	if hasEnd && endPart != "" {
		end, err = strconv.ParseInt(endPart, 10, 64)
		if err != nil {
			return Window{}, fmt.Errorf("%w: bad end %q", common.ErrRangeNotSatisfiable, endPart)
		}
	} else if chunkSize > 0 {
		end = min(start+chunkSize-1, total-1)
	}

	if start < 0 || start >= total || end >= total || start > end {
		return Window{}, fmt.Errorf("%w: %d-%d of %d", common.ErrRangeNotSatisfiable, start, end, total)
	}

	return Window{Start: start, End: end, Total: total}, nil
}
