// Package netx fetches remote payloads over HTTP with byte-range support.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
)

// NewStreamClient returns a client for payload transfers. It has no total
// timeout, so a body may take as long as the request context allows;
// headerTimeout bounds the wait for the upstream's response headers only.
func NewStreamClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	if headerTimeout > 0 && headerTimeout < tr.TLSHandshakeTimeout {
		tr.TLSHandshakeTimeout = headerTimeout
	}
	return &http.Client{Transport: tr}
}

// FetchRange GETs url and returns its body. When window is set the request
// carries a Range header; an upstream that ignores it and replies 200 gets
// its body skipped and cut locally so the caller always sees exactly the
// window's bytes. Any other status becomes a *common.BackendError.
//
// The request is bound to ctx, so cancelling ctx aborts the transfer.
func FetchRange(ctx context.Context, client *http.Client, url string, window *rangex.Window) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if window != nil {
		req.Header.Set("Range", window.Header())
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, StripURL(err))
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && window != nil:
		return limitBody(resp.Body, window.Length()), nil
	case resp.StatusCode == http.StatusOK:
		if window == nil {
			return resp.Body, nil
		}
		if window.Start > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, window.Start); err != nil {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("%w: skip to offset %d: %v", common.ErrBackendUnavailable, window.Start, err)
			}
		}
		return limitBody(resp.Body, window.Length()), nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_ = resp.Body.Close()
		return nil, common.ErrRangeNotSatisfiable
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &common.BackendError{Code: resp.StatusCode, Description: fmt.Sprintf("fetch failed: %s; body: %s", resp.Status, string(b))}
	}
}

// StripURL drops the request URL from a client error. URLs may carry
// credentials such as a bot token or a presigned signature.
func StripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

type limitedBody struct {
	io.Reader
	io.Closer
}

func limitBody(rc io.ReadCloser, n int64) io.ReadCloser {
	return limitedBody{Reader: io.LimitReader(rc, n), Closer: rc}
}
