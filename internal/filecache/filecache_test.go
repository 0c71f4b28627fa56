package filecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countdown/internal/ttlcache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/css", ContentType("css/theme.css"))
	assert.Equal(t, "text/css", ContentType("THEME.CSS"))
	assert.Contains(t, ContentType("index.html"), "text/html")
	assert.Equal(t, "application/json", ContentType("manifest.json"))
	assert.Equal(t, "image/png", ContentType("img/logo.png"))
	assert.Empty(t, ContentType("LICENSE"))
}

func TestGetCachesWithinWindow(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
	root := t.TempDir()
	writeFile(t, root, "css/app.css", "body{}")
	c := New(root, time.Minute, ttlcache.WithClock(clk))
	ctx := context.Background()

	f, err := c.Get(ctx, "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(f.Content))
	assert.Equal(t, "text/css", f.ContentType)

	writeFile(t, root, "css/app.css", "body{color:red}")
	f, _ = c.Get(ctx, "/css/app.css")
	assert.Equal(t, "body{}", string(f.Content))

	clk.Advance(61 * time.Second)
	f, _ = c.Get(ctx, "css/app.css")
	assert.Equal(t, "body{color:red}", string(f.Content))
}

func TestGetMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/a.txt", "a")
	c := New(root, time.Minute)
	ctx := context.Background()

	for _, rel := range []string{"nope.js", "dir", "../etc/passwd", ".env", "dir/.secret", ""} {
		_, err := c.Get(ctx, rel)
		assert.ErrorIs(t, err, ErrMissing, rel)
	}
}

func TestSniffsUnknownExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README", "plain words")
	c := New(root, time.Minute)

	f, err := c.Get(context.Background(), "README")
	require.NoError(t, err)
	assert.Contains(t, f.ContentType, "text/plain")
}

func TestHandler(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html></html>")
	writeFile(t, root, "css/app.css", "body{}")
	h := New(root, time.Minute).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "body{}", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html></html>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index.html", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSweeper(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	c := New(root, time.Minute, ttlcache.WithClock(clk))

	_, err := c.Get(context.Background(), "a.txt")
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	s := c.Sweeper()
	assert.Equal(t, "files", s.Name())
	assert.Equal(t, 1, s.Purge(s.Now()))
}
