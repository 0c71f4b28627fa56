package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	apex "github.com/apex/log"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *apex.Logger
	handler    *lineHandler
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		handler = &lineHandler{out: os.Stderr}
		logger = &apex.Logger{Handler: handler, Level: apex.InfoLevel}
	})
}

// SetLevel changes the minimum level. Unknown levels are ignored.
func SetLevel(l Level) {
	initLogger()
	lvl, err := apex.ParseLevel(strings.ToLower(string(l)))
	if err != nil {
		return
	}
	logger.Level = lvl
}

// SetOutput redirects log lines, mostly for tests.
func SetOutput(w io.Writer) {
	initLogger()
	handler.mu.Lock()
	handler.out = w
	handler.mu.Unlock()
}

func Debug(msg string, kv ...any) {
	initLogger()
	logger.WithFields(fields(kv)).Debug(msg)
}

func Info(msg string, kv ...any) {
	initLogger()
	logger.WithFields(fields(kv)).Info(msg)
}

func Warn(msg string, kv ...any) {
	initLogger()
	logger.WithFields(fields(kv)).Warn(msg)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	logger.WithFields(fields(kv)).WithError(err).Error(msg)
}

// fields turns key, value, key, value... into apex fields.
// Non-string keys are skipped; a trailing odd value is ignored.
func fields(kv []any) apex.Fields {
	f := apex.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// lineHandler renders entries as:
// 2025-01-01T00:00:00Z [LEVEL] msg error=... key=value ...
type lineHandler struct {
	mu  sync.Mutex
	out io.Writer
}

func (h *lineHandler) HandleLog(e *apex.Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(ts.Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString("] ")
	b.WriteString(e.Message)
	b.WriteString(formatFields(e.Fields))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, b.String())
	return err
}

func formatFields(f apex.Fields) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		out += " " + k + "=" + fmt.Sprint(f[k])
	}
	return out
}
