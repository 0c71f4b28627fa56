// Package source resolves schedule data for named sources. Each source is a
// directory under the data root holding source.json plus its data files;
// web sources are fetched from an upstream server and fall back to that
// directory when the upstream cannot be reached.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "countdown/internal/log"
	"countdown/internal/ttlcache"
)

const (
	descriptorFileName = "source.json"
	messageFileName    = "message.json"
	MetaFile           = "meta.json"
	CorrectionFile     = "correction.txt"
	SchedulesFile      = "schedules.bell"
	CalendarFile       = "calendar.bell"
)

// Meta is a source's decoded meta.json. Its shape is owned by the front end.
type Meta map[string]any

// Resolver answers data requests for every source under a data root. The
// descriptor lookup and each accessor have their own cache, all sharing one
// TTL.
type Resolver struct {
	dataDir string
	remote  *Remote

	descriptors *ttlcache.Cache[Descriptor]
	correction  *ttlcache.Cache[string]
	schedules   *ttlcache.Cache[string]
	calendar    *ttlcache.Cache[string]
	meta        *ttlcache.Cache[Meta]
	message     *ttlcache.Cache[json.RawMessage]
}

// NewResolver builds a Resolver over dataDir. opts are applied to every
// cache the resolver owns.
func NewResolver(dataDir string, remote *Remote, ttl time.Duration, opts ...ttlcache.Option) *Resolver {
	r := &Resolver{
		dataDir: dataDir,
		remote:  remote,
	}

	named := func(name string) []ttlcache.Option {
		return append([]ttlcache.Option{ttlcache.WithName(name)}, opts...)
	}

	r.descriptors = ttlcache.New(ttl, func(ctx context.Context, args ...any) (Descriptor, error) {
		return r.loadDescriptor(args[0].(string))
	}, named("source")...)
	r.correction = ttlcache.New(ttl, r.fileLoader(CorrectionFile), named("correction")...)
	r.schedules = ttlcache.New(ttl, r.fileLoader(SchedulesFile), named("schedules")...)
	r.calendar = ttlcache.New(ttl, r.fileLoader(CalendarFile), named("calendar")...)
	r.meta = ttlcache.New(ttl, func(ctx context.Context, args ...any) (Meta, error) {
		return r.loadMeta(ctx, args[0].(string))
	}, named("meta")...)
	r.message = ttlcache.New(ttl, func(context.Context, ...any) (json.RawMessage, error) {
		return r.loadMessage()
	}, named("message")...)

	return r
}

func (r *Resolver) fileLoader(file string) ttlcache.Loader[string] {
	return func(ctx context.Context, args ...any) (string, error) {
		return r.Fetch(ctx, args[0].(string), file)
	}
}

// Source returns the descriptor for id.
func (r *Resolver) Source(ctx context.Context, id string) (Descriptor, error) {
	if !validID(id) {
		return Descriptor{}, fmt.Errorf("source %q: %w", id, ErrNotFound)
	}
	return r.descriptors.Get(ctx, id)
}

// Fetch returns file for source id. Web sources are requested from their
// upstream first; any upstream failure is logged and the local copy is
// returned instead.
func (r *Resolver) Fetch(ctx context.Context, id, file string) (string, error) {
	d, err := r.Source(ctx, id)
	if err != nil {
		return "", err
	}

	switch d.Location {
	case Local:
		return r.readLocal(id, file)
	case Web:
		body, err := r.remote.Fetch(ctx, d, file)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		appLog.Warn("connection to source failed, using local copy", "source", id, "file", file, "url", redactURL(d.URL), "err", err)

		local, lerr := r.readLocal(id, file)
		if lerr != nil {
			return "", fmt.Errorf("%w (upstream: %v)", lerr, err)
		}
		return local, nil
	default:
		return "", fmt.Errorf("source %s: unhandled location %v", id, d.Location)
	}
}

// Correction returns correction.txt for id.
func (r *Resolver) Correction(ctx context.Context, id string) (string, error) {
	return r.correction.Get(ctx, id)
}

// Schedules returns schedules.bell for id.
func (r *Resolver) Schedules(ctx context.Context, id string) (string, error) {
	return r.schedules.Get(ctx, id)
}

// Calendar returns calendar.bell for id.
func (r *Resolver) Calendar(ctx context.Context, id string) (string, error) {
	return r.calendar.Get(ctx, id)
}

// Meta returns the decoded meta.json for id. The returned map is shared with
// the cache and must not be modified.
func (r *Resolver) Meta(ctx context.Context, id string) (Meta, error) {
	return r.meta.Get(ctx, id)
}

// Message returns the site-wide message.json from the data root.
func (r *Resolver) Message(ctx context.Context) (json.RawMessage, error) {
	return r.message.Get(ctx)
}

// Names lists the source directories under the data root.
func (r *Resolver) Names() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list data dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && validID(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Sources returns the metadata of every source, each copy annotated with its
// directory name under "id". Sources whose metadata cannot be loaded are
// logged and left out.
func (r *Resolver) Sources(ctx context.Context) ([]Meta, error) {
	names, err := r.Names()
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			m, err := r.Meta(gctx, name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				appLog.Error("source metadata unavailable", err, "source", name)
				return nil
			}
			out := make(Meta, len(m)+1)
			for k, v := range m {
				out[k] = v
			}
			out["id"] = name
			metas[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]Meta, 0, len(metas))
	for _, m := range metas {
		if m != nil {
			result = append(result, m)
		}
	}
	return result, nil
}

// Caches exposes the resolver's caches for periodic sweeping.
func (r *Resolver) Caches() []ttlcache.Sweeper {
	return []ttlcache.Sweeper{r.descriptors, r.correction, r.schedules, r.calendar, r.meta, r.message}
}

func (r *Resolver) loadDescriptor(id string) (Descriptor, error) {
	path := filepath.Join(r.dataDir, id, descriptorFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Descriptor{}, fmt.Errorf("source %q: %w", id, ErrNotFound)
		}
		return Descriptor{}, fmt.Errorf("source %q: read descriptor: %v: %w", id, err, ErrNotFound)
	}

	d, err := DecodeDescriptor(id, data)
	if err != nil {
		appLog.Error("invalid source descriptor", err, "source", id, "path", path)
		return Descriptor{}, errors.Join(ErrNotFound, err)
	}
	return d, nil
}

func (r *Resolver) loadMeta(ctx context.Context, id string) (Meta, error) {
	raw, err := r.Fetch(ctx, id, MetaFile)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, &ParseError{Source: id, File: MetaFile, Raw: raw, Err: err}
	}
	if m == nil {
		return nil, &ParseError{Source: id, File: MetaFile, Raw: raw, Err: errors.New("metadata is not an object")}
	}
	return m, nil
}

func (r *Resolver) loadMessage() (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(r.dataDir, messageFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", messageFileName, ErrNotFound)
		}
		return nil, err
	}
	if !json.Valid(data) {
		return nil, &ParseError{File: messageFileName, Raw: string(data), Err: errors.New("invalid JSON")}
	}
	return json.RawMessage(data), nil
}

func (r *Resolver) readLocal(id, file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dataDir, id, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("source %s: %s: %w", id, file, ErrNotFound)
		}
		return "", fmt.Errorf("source %s: read %s: %v: %w", id, file, err, ErrNotFound)
	}
	return string(data), nil
}

// validID rejects ids that are not a single plain path element.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
