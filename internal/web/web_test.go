package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countdown/internal/config"
	"countdown/internal/filecache"
	"countdown/internal/source"
	"countdown/internal/version"
)

type fixture struct {
	root   string
	server *Server
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.StaticDir = filepath.Join(root, "public")
	cfg.VersionFile = filepath.Join(root, "VERSION")
	cfg.Timezone = "UTC"
	cfg.ExportWeeks = 2

	writeFile(t, cfg.VersionFile, "3.2.11\n")
	writeFile(t, filepath.Join(cfg.StaticDir, "index.html"), "<html>bell</html>")
	writeFile(t, filepath.Join(cfg.StaticDir, "css", "app.css"), "body{}")

	custom := filepath.Join(cfg.DataDir, "custom")
	writeFile(t, filepath.Join(custom, "source.json"), `{"location":"local"}`)
	writeFile(t, filepath.Join(custom, "meta.json"), `{"name":"Custom"}`)
	writeFile(t, filepath.Join(custom, "correction.txt"), "5")
	writeFile(t, filepath.Join(custom, "schedules.bell"), "* Normal\n8:00 Period 1")
	writeFile(t, filepath.Join(custom, "calendar.bell"), "* Default Week\n")

	empty := filepath.Join(cfg.DataDir, "empty")
	writeFile(t, filepath.Join(empty, "source.json"), `{"location":"local"}`)
	writeFile(t, filepath.Join(empty, "meta.json"), `{"name":"Empty"`)
	writeFile(t, filepath.Join(empty, "correction.txt"), "")

	writeFile(t, filepath.Join(cfg.DataDir, "message.json"), `{"text":"hi"}`)

	resolver := source.NewResolver(cfg.DataDir, source.NewRemote(200*time.Millisecond), cfg.CacheTTL())
	files := filecache.New(cfg.StaticDir, cfg.FileCacheTTL())
	ver := version.NewLocal(cfg.VersionFile, cfg.CacheTTL())

	s := NewServer(cfg, resolver, files, ver)
	s.now = func() time.Time { return time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC) }
	return &fixture{root: root, server: s}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCorrectionEndToEnd(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/data/custom/correction", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestCorrectionEmptyIsZero(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/data/empty/correction", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Body.String())
}

func TestMeta(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/data/custom/meta", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Custom"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/data/empty/meta", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/data/unknown/meta", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", rec.Body.String())
}

func TestTextEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/data/custom/schedules", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "* Normal\n8:00 Period 1", rec.Body.String())

	rec = f.do(http.MethodGet, "/api/data/custom/calendar", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "* Default Week\n", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	rec = f.do(http.MethodGet, "/api/data/empty/calendar", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/data/nope/schedules", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSourceFallsBackToLocal(t *testing.T) {
	f := newFixture(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	dir := filepath.Join(f.root, "data", "mirror")
	writeFile(t, filepath.Join(dir, "source.json"), `{"location":"web","url":"`+upstream.URL+`"}`)
	writeFile(t, filepath.Join(dir, "correction.txt"), "-2")

	rec := f.do(http.MethodGet, "/api/data/mirror/correction", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-2", rec.Body.String())
}

func TestSources(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/sources/names", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["custom","empty"]`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/sources", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"custom","name":"Custom"}]`, rec.Body.String())
}

func TestVersionMessageTime(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3.2.11", rec.Body.String())

	rec = f.do(http.MethodGet, "/api/message", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"hi"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/time", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var tr timeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC).UnixMilli(), tr.Time)
}

func TestClassesICS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/classes/ics", `{
		"courses": [{"name": "Chemistry", "sections": [{"day": "Tuesday", "start": "10am", "end": "10:50am"}]}],
		"from": "2025-01-06"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Chemistry")
	assert.Contains(t, body, "DTSTART:20250107T100000Z")
	assert.Contains(t, body, "COUNT=2")
}

func TestClassesImport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/classes/ics", `{
		"courses": [{"name": "Chemistry", "sections": [{"day": "Tuesday", "start": "10am", "end": "10:50am"}]}],
		"from": "2025-01-06"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/classes/import", rec.Body.String())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"courses":[{"name":"Chemistry","sections":[{"day":"Tuesday","start":"10am","end":"10:50am"}]}]}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/classes/import", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassesICSRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name, body, want string
	}{
		{"bad time", `{"courses":[{"name":"Art","sections":[{"day":"Mon","start":"8 xm","end":"9"}]}]}`, "failed to parse time"},
		{"no courses", `{"courses":[]}`, "no courses"},
		{"bad json", `{"courses":`, "invalid request body"},
		{"unknown field", `{"classes":[]}`, "invalid request body"},
		{"bad from", `{"courses":[{"name":"Art","sections":[{"day":"Mon","start":"8","end":"9"}]}],"from":"Jan 6"}`, "YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/classes/ics", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>bell</html>", rec.Body.String())

	rec = f.do(http.MethodGet, "/css/app.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))

	rec = f.do(http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStartServerShutsDown(t *testing.T) {
	f := newFixture(t)
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartServer(ctx, cfg, f.server) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
