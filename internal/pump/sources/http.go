package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTP streams the body of a remote resource. The request is issued with the
// transfer's context so cancelling the transfer aborts the download.
type HTTP struct {
	resp *http.Response
}

// OpenHTTP issues a GET for url and returns a source over the response body.
// Non-2xx statuses are reported as errors before any byte moves.
func OpenHTTP(ctx context.Context, url string, timeout time.Duration) (*HTTP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return &HTTP{resp: resp}, nil
}

func (s *HTTP) Read(buf []byte) (int, error) {
	return s.resp.Body.Read(buf)
}

// Size returns the advertised Content-Length, or -1 when the server did not
// send one.
func (s *HTTP) Size() int64 {
	return s.resp.ContentLength
}

func (s *HTTP) Close() error {
	return s.resp.Body.Close()
}
