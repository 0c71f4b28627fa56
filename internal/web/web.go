package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"countdown/internal/config"
	"countdown/internal/filecache"
	appLog "countdown/internal/log"
	"countdown/internal/schedule"
	"countdown/internal/source"
	"countdown/internal/version"
)

// maxClassesBody caps the size of a class export request.
const maxClassesBody = 1 << 20

// Server provides the schedule data API and serves the static front end.
type Server struct {
	cfg      *config.Config
	resolver *source.Resolver
	files    *filecache.Cache
	version  *version.Local
	loc      *time.Location
	now      func() time.Time
	mux      *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, resolver *source.Resolver, files *filecache.Cache, ver *version.Local) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		files:    files,
		version:  ver,
		loc:      resolveLocationOrLocal(cfg.Timezone),
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartServer serves s on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/data/{source}/meta", s.handleMeta)
	s.mux.HandleFunc("GET /api/data/{source}/correction", s.handleCorrection)
	s.mux.HandleFunc("GET /api/data/{source}/calendar", s.textHandler(s.resolver.Calendar))
	s.mux.HandleFunc("GET /api/data/{source}/schedules", s.textHandler(s.resolver.Schedules))
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("GET /api/sources/names", s.handleSourceNames)

	s.mux.HandleFunc("GET /api/version", s.handleVersion)
	s.mux.HandleFunc("GET /api/message", s.handleMessage)
	s.mux.HandleFunc("GET /api/time", s.handleTime)
	s.mux.HandleFunc("POST /api/classes/ics", s.handleClassesICS)
	s.mux.HandleFunc("POST /api/classes/import", s.handleClassesImport)

	// Static front end. All non-/api/* paths fall back to this handler.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// handleMeta returns a source's metadata. Unknown sources and metadata that
// does not decode are both reported as 404.
func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("source")
	meta, err := s.resolver.Meta(r.Context(), id)
	if err != nil {
		logLookupError("api meta", err, id)
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleCorrection returns the clock correction in seconds, "0" when the
// source has an empty correction file.
func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("source")
	correction, err := s.resolver.Correction(r.Context(), id)
	if err != nil {
		logLookupError("api correction", err, id)
		writeNotFound(w)
		return
	}
	if correction == "" {
		correction = "0"
	}
	writeText(w, http.StatusOK, correction)
}

// textHandler serves a plain-text source accessor.
func (s *Server) textHandler(get func(context.Context, string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("source")
		body, err := get(r.Context(), id)
		if err != nil {
			logLookupError("api data", err, id, "path", r.URL.Path)
			writeNotFound(w)
			return
		}
		writeText(w, http.StatusOK, body)
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.resolver.Sources(r.Context())
	if err != nil {
		appLog.Error("api sources failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleSourceNames(w http.ResponseWriter, _ *http.Request) {
	names, err := s.resolver.Names()
	if err != nil {
		appLog.Error("api source names failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.version.Get(r.Context())
	if err != nil {
		appLog.Error("api version failed", err)
		writeNotFound(w)
		return
	}
	writeText(w, http.StatusOK, v)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.resolver.Message(r.Context())
	if err != nil {
		logLookupError("api message", err, "")
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type timeResponse struct {
	Time int64 `json:"time"`
}

// handleTime reports server time in Unix milliseconds for client clock sync.
func (s *Server) handleTime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, timeResponse{Time: s.now().UnixMilli()})
}

// classesRequest is the body of POST /api/classes/ics.
type classesRequest struct {
	Courses []schedule.RawCourse `json:"courses"`
	// From is the first week as YYYY-MM-DD; defaults to today.
	From string `json:"from,omitempty"`
	// Weeks overrides the configured export length.
	Weeks int `json:"weeks,omitempty"`
}

// handleClassesICS validates entered courses and returns them as an
// iCalendar feed. Any time that does not parse rejects the whole request.
func (s *Server) handleClassesICS(w http.ResponseWriter, r *http.Request) {
	var req classesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClassesBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Courses) == 0 {
		writeError(w, http.StatusBadRequest, "no courses given")
		return
	}

	courses := make([]schedule.Course, 0, len(req.Courses))
	for _, rc := range req.Courses {
		c, err := schedule.ParseCourse(rc)
		if err != nil {
			appLog.Debug("api classes rejected", "err", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		courses = append(courses, c)
	}

	from := s.now().In(s.loc)
	if req.From != "" {
		t, err := time.ParseInLocation("2006-01-02", req.From, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	weeks := s.cfg.ExportWeeks
	if req.Weeks > 0 {
		weeks = req.Weeks
	}

	out, err := schedule.ExportICS(courses, schedule.ExportConfig{
		Location: s.loc,
		From:     from,
		Weeks:    weeks,
		Now:      s.now(),
	})
	if err != nil {
		appLog.Error("api classes export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export classes")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="classes.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

type importResponse struct {
	Courses []schedule.RawCourse `json:"courses"`
}

// handleClassesImport reads an iCalendar feed of weekly classes back into
// entered-course form.
func (s *Server) handleClassesImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxClassesBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	courses, err := schedule.ImportICS(body, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := importResponse{Courses: make([]schedule.RawCourse, 0, len(courses))}
	for _, c := range courses {
		resp.Courses = append(resp.Courses, c.Raw())
	}
	writeJSON(w, http.StatusOK, resp)
}

// staticFileServer serves the front end through the file cache.
func (s *Server) staticFileServer() http.Handler {
	files := s.files.Handler()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths must 404 rather than serve a page.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeNotFound(w)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// logLookupError logs failed source lookups. Plain misses stay at debug.
func logLookupError(msg string, err error, id string, kv ...any) {
	kv = append([]any{"source", id}, kv...)
	var pe *source.ParseError
	switch {
	case errors.As(err, &pe):
		appLog.Error(msg+": parse failed", err, kv...)
	case errors.Is(err, source.ErrNotFound):
		appLog.Debug(msg+": not found", append(kv, "err", err)...)
	default:
		appLog.Error(msg+" failed", err, kv...)
	}
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeNotFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, "Not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
