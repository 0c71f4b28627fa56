package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "countdown/internal/log"
)

// maxRemoteBody caps how much of an upstream response is read.
const maxRemoteBody = 4 << 20

// Remote fetches source files from the server a Web descriptor points at.
// There is exactly one attempt per call; the caller decides what to do on
// failure.
type Remote struct {
	client  *http.Client
	timeout time.Duration
}

// NewRemote creates a Remote whose requests give up after timeout.
// A zero timeout falls back to 10s so a hung upstream cannot stall the
// local fallback forever.
func NewRemote(timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// URLFor returns {base}/api/data/{id}/{stem}, where stem is file up to its
// first dot.
func URLFor(base, id, file string) string {
	stem, _, _ := strings.Cut(file, ".")
	return strings.TrimRight(base, "/") + "/api/data/" + url.PathEscape(id) + "/" + url.PathEscape(stem)
}

// Fetch requests file for the Web source d.
func (r *Remote) Fetch(ctx context.Context, d Descriptor, file string) (string, error) {
	target := URLFor(d.URL, d.ID, file)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &UpstreamError{URL: target, Err: err}
	}

	appLog.Debug("remote fetch start", "source", d.ID, "url", redactURL(target))

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &UpstreamError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", &UpstreamError{URL: target, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return "", &UpstreamError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	appLog.Debug("remote fetch success", "source", d.ID, "url", redactURL(target), "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}

// redactURL keeps only scheme and host of u for logging.
//
//	https://bells.example.com/api/data/lahs/meta?key=abcd
//	-> https://bells.example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "source://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
