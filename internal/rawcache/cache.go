// Package rawcache stores raw time-series responses on disk, one file per
// (site, species, window).
//
// A successful non-empty payload is cached permanently. A successful but empty
// response leaves a marker that is honoured for a limited time, after which the
// window is fetched again. Failed requests are never cached.
package rawcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DateLayout formats window bounds inside cache file names.
const DateLayout = "2006-01-02"

const (
	payloadExt = ".json"
	emptyExt   = ".empty"
)

// ErrEmptyPayload is returned by Put for a zero-length payload.
var ErrEmptyPayload = errors.New("empty payload")

// Status is the outcome of a cache lookup.
type Status int

const (
	// Miss means the window has to be fetched.
	Miss Status = iota
	// Hit means a payload was found.
	Hit
	// EmptyHit means the window recently came back empty and should not be refetched yet.
	EmptyHit
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case EmptyHit:
		return "empty"
	default:
		return "miss"
	}
}

// Key identifies one cached window.
type Key struct {
	SiteCode string
	Species  string
	Start    time.Time
	End      time.Time
}

// String returns the file stem for the key.
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		sanitize(k.SiteCode), sanitize(k.Species),
		k.Start.Format(DateLayout), k.End.Format(DateLayout))
}

// Config holds configuration for the cache.
type Config struct {
	// Dir is the directory holding cache files. It is created if missing.
	Dir string

	// EmptyRetryAfter is how long an empty marker suppresses refetching.
	// Default: 168 hours
	EmptyRetryAfter time.Duration

	// Now supplies the current time.
	// Default: time.Now
	Now func() time.Time

	Logger zerolog.Logger
}

// Cache is a directory of raw responses.
type Cache struct {
	dir             string
	emptyRetryAfter time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

// New creates the cache directory if needed and returns a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("rawcache: directory is required")
	}
	if cfg.EmptyRetryAfter <= 0 {
		cfg.EmptyRetryAfter = 168 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:             cfg.Dir,
		emptyRetryAfter: cfg.EmptyRetryAfter,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get looks up a window. The payload is only returned for Hit.
func (c *Cache) Get(key Key) ([]byte, Status, error) {
	payload, err := os.ReadFile(c.path(key, payloadExt))
	switch {
	case err == nil:
		return payload, Hit, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, Miss, fmt.Errorf("read cache entry %s: %w", key, err)
	}

	marker, err := os.ReadFile(c.path(key, emptyExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Miss, nil
	}
	if err != nil {
		return nil, Miss, fmt.Errorf("read empty marker %s: %w", key, err)
	}

	markedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(string(marker)))
	if err != nil {
		c.logger.Debug().Str("key", key.String()).Msg("ignoring unreadable empty marker")
		return nil, Miss, nil
	}
	if c.now().Sub(markedAt) >= c.emptyRetryAfter {
		return nil, Miss, nil
	}
	return nil, EmptyHit, nil
}

// Put stores a payload permanently and clears any empty marker.
func (c *Cache) Put(key Key, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if err := c.writeAtomic(c.path(key, payloadExt), payload); err != nil {
		return err
	}
	if err := os.Remove(c.path(key, emptyExt)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear empty marker %s: %w", key, err)
	}
	return nil
}

// MarkEmpty records that the window returned no data.
func (c *Cache) MarkEmpty(key Key) error {
	stamp := c.now().UTC().Format(time.RFC3339)
	return c.writeAtomic(c.path(key, emptyExt), []byte(stamp))
}

func (c *Cache) path(key Key, ext string) string {
	return filepath.Join(c.dir, key.String()+ext)
}

func (c *Cache) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '_', ' ':
			return '-'
		}
		return r
	}, s)
}
