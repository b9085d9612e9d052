package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/go-resty/resty/v2"
)

// Fetcher downloads a price list document.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// HTTPFetcher fetches documents over HTTP with a bounded timeout and body size.
type HTTPFetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. A non-positive maxBytes disables the size limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "shopfeed-ingest/1.0").
		SetHeader("Accept", "application/x-yaml, application/yaml, application/json, text/plain, */*")
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch returns the body of a 2xx response. Every failure is an
// UPSTREAM_FETCH_ERROR carrying the reason.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	parsed, err := url.Parse(source)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fetchError(source, "unsupported url", err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(source)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fetchError(source, "timed out", err)
		}
		return nil, fetchError(source, "request failed", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fetchError(source, fmt.Sprintf("unexpected status %d", resp.StatusCode()), nil)
	}

	reader := io.Reader(body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if isTimeout(err) {
			return nil, fetchError(source, "timed out", err)
		}
		return nil, fetchError(source, "reading body failed", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fetchError(source, fmt.Sprintf("document exceeds %d bytes", f.maxBytes), nil)
	}
	return data, nil
}

func fetchError(source, reason string, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, cause, "fetch failed: "+reason).
		WithDetails(map[string]string{"url": source, "reason": reason})
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
