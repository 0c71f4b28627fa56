// Package filecache serves static files from a root directory, keeping
// their bytes in memory for a fixed window.
package filecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	appLog "countdown/internal/log"
	"countdown/internal/ttlcache"
)

// ErrMissing is returned for paths that do not name a regular file under
// the root.
var ErrMissing = errors.New("file missing")

// File is a cached static file.
type File struct {
	Path        string
	Content     []byte
	ContentType string
	ModTime     time.Time
}

// Cache reads files beneath root through a TTL cache.
type Cache struct {
	root  string
	files *ttlcache.Cache[*File]
}

// New returns a Cache rooted at root.
func New(root string, ttl time.Duration, opts ...ttlcache.Option) *Cache {
	c := &Cache{root: root}
	opts = append([]ttlcache.Option{ttlcache.WithName("files")}, opts...)
	c.files = ttlcache.New(ttl, func(_ context.Context, args ...any) (*File, error) {
		return c.load(args[0].(string))
	}, opts...)
	return c
}

// Sweeper exposes the underlying cache for periodic cleanup.
func (c *Cache) Sweeper() ttlcache.Sweeper { return c.files }

// Get returns the file at rel, a slash-separated path relative to the root.
func (c *Cache) Get(ctx context.Context, rel string) (*File, error) {
	clean, ok := cleanPath(rel)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, ErrMissing)
	}
	return c.files.Get(ctx, clean)
}

func (c *Cache) load(rel string) (*File, error) {
	full := filepath.Join(c.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", rel, ErrMissing)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", rel, ErrMissing)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	ct := ContentType(rel)
	if ct == "" {
		ct = http.DetectContentType(content)
	}

	appLog.Debug("static file loaded", "path", rel, "size", humanize.Bytes(uint64(len(content))), "content_type", ct)
	return &File{
		Path:        rel,
		Content:     content,
		ContentType: ct,
		ModTime:     info.ModTime(),
	}, nil
}

// ContentType guesses the MIME type from the file extension. Stylesheets are
// always text/css since some platform tables map .css to something else.
// An empty result means the caller should sniff the content.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".css" {
		return "text/css"
	}
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}

// Handler serves GET and HEAD requests from the cache. Directory paths map
// to their index.html.
func (c *Cache) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rel := r.URL.Path
		if rel == "" || strings.HasSuffix(rel, "/") {
			rel += "index.html"
		}

		f, err := c.Get(r.Context(), rel)
		if err != nil {
			if !errors.Is(err, ErrMissing) {
				appLog.Error("static file read failed", err, "path", rel)
			}
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("Content-Type", f.ContentType)
		http.ServeContent(w, r, f.Path, f.ModTime, bytes.NewReader(f.Content))
	})
}

// cleanPath normalizes rel and reports whether it stays inside the root.
func cleanPath(rel string) (string, bool) {
	if strings.ContainsRune(rel, 0) || strings.Contains(rel, `\`) {
		return "", false
	}
	p := path.Clean("/" + rel)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return p, true
}
