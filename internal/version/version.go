// Package version reports the running version and compares it with the
// newest published one.
package version

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"

	appLog "countdown/internal/log"
	"countdown/internal/ttlcache"
)

// Local reads the running version from a file, cached for the TTL.
type Local struct {
	path  string
	cache *ttlcache.Cache[string]
}

// NewLocal returns a Local reading path.
func NewLocal(path string, ttl time.Duration, opts ...ttlcache.Option) *Local {
	l := &Local{path: path}
	opts = append([]ttlcache.Option{ttlcache.WithName("version")}, opts...)
	l.cache = ttlcache.New(ttl, func(context.Context, ...any) (string, error) {
		b, err := os.ReadFile(l.path)
		if err != nil {
			return "", fmt.Errorf("read version file: %w", err)
		}
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", errors.New("version file is empty")
		}
		return v, nil
	}, opts...)
	return l
}

// Get returns the running version.
func (l *Local) Get(ctx context.Context) (string, error) {
	return l.cache.Get(ctx)
}

// Sweeper exposes the cache for periodic cleanup.
func (l *Local) Sweeper() ttlcache.Sweeper { return l.cache }

// Comparison is the outcome of comparing the running and published versions.
type Comparison int

const (
	UpToDate Comparison = iota
	Outdated
	Ahead
)

func (c Comparison) String() string {
	switch c {
	case Outdated:
		return "outdated"
	case Ahead:
		return "ahead"
	default:
		return "up-to-date"
	}
}

// Compare reports how local relates to remote.
func Compare(local, remote string) (Comparison, error) {
	lv, err := goversion.NewVersion(local)
	if err != nil {
		return UpToDate, fmt.Errorf("local version %q: %w", local, err)
	}
	rv, err := goversion.NewVersion(remote)
	if err != nil {
		return UpToDate, fmt.Errorf("remote version %q: %w", remote, err)
	}
	switch lv.Compare(rv) {
	case 1:
		return Ahead, nil
	case -1:
		return Outdated, nil
	default:
		return UpToDate, nil
	}
}

// Checker polls a URL for the newest published version and logs when it
// differs from what was seen last.
type Checker struct {
	url    string
	local  *Local
	client *http.Client

	mu     sync.Mutex
	newest string
}

// NewChecker returns a Checker querying url.
func NewChecker(url string, local *Local, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		url:    url,
		local:  local,
		client: &http.Client{Timeout: timeout},
	}
}

// Check fetches the published version and compares it with the running one.
// It returns changed=false when the published version is the same as on the
// previous successful check.
func (c *Checker) Check(ctx context.Context) (cmp Comparison, changed bool, err error) {
	remote, err := c.fetch(ctx)
	if err != nil {
		return UpToDate, false, err
	}

	c.mu.Lock()
	changed = remote != c.newest
	c.newest = remote
	c.mu.Unlock()

	local, err := c.local.Get(ctx)
	if err != nil {
		return UpToDate, changed, err
	}
	cmp, err = Compare(local, remote)
	if err != nil {
		return UpToDate, changed, err
	}

	if changed {
		switch cmp {
		case Ahead:
			appLog.Info("running a version newer than the published one", "local", local, "published", remote)
		case Outdated:
			appLog.Warn("a newer version is available", "local", local, "published", remote)
		default:
			appLog.Info("version is up to date", "version", local)
		}
	}
	return cmp, changed, nil
}

// Run is Check with failures logged, for use from a scheduler.
func (c *Checker) Run(ctx context.Context) {
	if _, _, err := c.Check(ctx); err != nil {
		appLog.Warn("version check failed, check the network connection", "url", c.url, "err", err)
	}
}

func (c *Checker) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", errors.New("empty version response")
	}
	return v, nil
}
