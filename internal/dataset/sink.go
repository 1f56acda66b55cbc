package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/londonair/airdataset/internal/airquality"
)

// ManifestFile is the name of the manifest inside a parts directory.
const ManifestFile = "manifest.json"

// Manifest lists the parts that make up an incrementally written table.
type Manifest struct {
	Records   int       `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
	Parts     []Part    `json:"parts"`
}

// Part is one flushed batch.
type Part struct {
	File      string    `json:"file"`
	RunID     string    `json:"run_id"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// PartSink writes each flushed batch of raw measurements as a new parquet
// part and rewrites only the manifest. Parts of earlier runs are kept, so a
// re-run appends; duplicates are removed when the parts are reshaped.
type PartSink struct {
	dir    string
	runID  string
	logger zerolog.Logger

	mu       sync.Mutex
	manifest Manifest
	seq      int
}

// NewPartSink opens dir, loading an existing manifest if there is one.
func NewPartSink(dir string, logger zerolog.Logger) (*PartSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create parts dir: %w", err)
	}

	s := &PartSink{
		dir:    dir,
		runID:  uuid.NewString(),
		logger: logger,
	}

	m, err := ReadManifest(dir)
	switch {
	case err == nil:
		s.manifest = m
	case errors.As(err, new(*MissingSourceFileError)):
	default:
		return nil, err
	}
	return s, nil
}

// RunID identifies the parts written by this sink.
func (s *PartSink) RunID() string {
	return s.runID
}

// Write stores records as a new part.
func (s *PartSink) Write(records []airquality.RawMeasurement) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	name := fmt.Sprintf("part-%s-%05d.parquet", s.runID[:8], s.seq)

	rows := make([]RawRow, len(records))
	for i, r := range records {
		rows[i] = toRawRow(r)
	}
	if err := writeParquet(filepath.Join(s.dir, name), rows); err != nil {
		return fmt.Errorf("write part %s: %w", name, err)
	}

	now := time.Now().UTC()
	next := s.manifest
	next.Parts = append(append([]Part(nil), s.manifest.Parts...), Part{
		File:      name,
		RunID:     s.runID,
		Records:   len(rows),
		CreatedAt: now,
	})
	next.Records += len(rows)
	next.UpdatedAt = now

	if err := writeManifest(s.dir, next); err != nil {
		return err
	}
	s.manifest = next

	s.logger.Debug().
		Str("part", name).
		Int("records", len(rows)).
		Int("total_records", next.Records).
		Msg("part written")
	return nil
}

// Manifest returns a copy of the current manifest.
func (s *PartSink) Manifest() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.manifest
	m.Parts = append([]Part(nil), s.manifest.Parts...)
	return m
}

// ReadManifest loads the manifest of a parts directory.
func ReadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, &MissingSourceFileError{Path: path}
		}
		return Manifest{}, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFile))
}

// ReadParts concatenates every part listed in the manifest of dir.
func ReadParts(dir string) ([]airquality.RawMeasurement, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	out := make([]airquality.RawMeasurement, 0, m.Records)
	for _, p := range m.Parts {
		rows, err := readParquet[RawRow](filepath.Join(dir, p.File))
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", p.File, err)
		}
		for _, r := range rows {
			out = append(out, r.measurement())
		}
	}
	return out, nil
}
