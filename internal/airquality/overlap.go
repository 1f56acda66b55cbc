package airquality

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const daysPerYear = 365.25

// SelectorConfig holds configuration for the site-overlap selector.
type SelectorConfig struct {
	// First and Second name the two series that must overlap.
	// Default: NO2 and PM25
	First  Species
	Second Species

	// MinYears is the minimum overlap duration for a site to qualify.
	// Zero disables the threshold.
	// Default: 5 (nil)
	MinYears *float64

	// TopN caps the number of selected sites.
	// Default: 10
	TopN int

	// Now supplies the processing date used for ongoing series.
	// Default: time.Now
	Now func() time.Time

	Logger zerolog.Logger
}

// DefaultSelectorConfig returns the default selection policy.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		First:    SpeciesNO2,
		Second:   SpeciesPM25,
		MinYears: MinOverlap(5),
		TopN:     10,
		Now:      time.Now,
	}
}

// MinOverlap returns y as a SelectorConfig.MinYears value.
func MinOverlap(y float64) *float64 {
	return &y
}

// Selector ranks sites by how long two series have been measured together.
type Selector struct {
	config SelectorConfig
}

// NewSelector creates a new Selector.
func NewSelector(cfg SelectorConfig) *Selector {
	defaults := DefaultSelectorConfig()
	if cfg.First == "" {
		cfg.First = defaults.First
	}
	if cfg.Second == "" {
		cfg.Second = defaults.Second
	}
	if cfg.MinYears == nil || *cfg.MinYears < 0 {
		cfg.MinYears = defaults.MinYears
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaults.TopN
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	return &Selector{config: cfg}
}

// Overlap computes the overlap of the two configured series at a site.
// An inverted interval yields ErrInvertedOverlap; unparsable dates yield ErrInvalidDate.
func (s *Selector) Overlap(site *MonitoringSite) (OverlapRecord, error) {
	first, ok := site.Range(s.config.First)
	if !ok || first.Start == "" {
		return OverlapRecord{}, fmt.Errorf("%w: %s", ErrMissingSpecies, s.config.First)
	}
	second, ok := site.Range(s.config.Second)
	if !ok || second.Start == "" {
		return OverlapRecord{}, fmt.Errorf("%w: %s", ErrMissingSpecies, s.config.Second)
	}

	now := s.config.Now().UTC()
	a, err := parseWindow(first, now)
	if err != nil {
		return OverlapRecord{}, err
	}
	b, err := parseWindow(second, now)
	if err != nil {
		return OverlapRecord{}, err
	}

	window, err := Intersect(a, b)
	if err != nil {
		return OverlapRecord{}, err
	}

	return OverlapRecord{
		SiteCode:     site.Code,
		SiteName:     site.Name,
		Lat:          site.Lat,
		Lon:          site.Lon,
		OverlapStart: window.Start,
		OverlapEnd:   window.End,
		OverlapYears: Years(window),
	}, nil
}

// Select returns qualifying sites ordered by overlap duration, longest first.
// Sites whose dates cannot be evaluated are skipped.
func (s *Selector) Select(sites []*MonitoringSite) []OverlapRecord {
	records := make([]OverlapRecord, 0, len(sites))
	for _, site := range sites {
		record, err := s.Overlap(site)
		if err != nil {
			s.config.Logger.Debug().
				Err(err).
				Str("site_code", site.Code).
				Msg("site excluded from overlap ranking")
			continue
		}
		if record.OverlapYears < *s.config.MinYears {
			continue
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OverlapYears > records[j].OverlapYears
	})

	if len(records) > s.config.TopN {
		records = records[:s.config.TopN]
	}

	s.config.Logger.Info().
		Int("candidates", len(sites)).
		Int("selected", len(records)).
		Float64("min_years", *s.config.MinYears).
		Msg("sites selected by overlap")

	return records
}

// Intersect returns [max(starts), min(ends)], or ErrInvertedOverlap.
func Intersect(a, b SpeciesWindow) (SpeciesWindow, error) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if end.Before(start) {
		return SpeciesWindow{}, ErrInvertedOverlap
	}
	return SpeciesWindow{Start: start, End: end}, nil
}

// Years returns the whole days covered by a window divided by 365.25.
func Years(w SpeciesWindow) float64 {
	days := int(w.End.Sub(w.Start).Hours() / 24)
	return float64(days) / daysPerYear
}

func parseWindow(r SpeciesRange, now time.Time) (SpeciesWindow, error) {
	start, err := ParseDate(r.Start)
	if err != nil {
		return SpeciesWindow{}, fmt.Errorf("%s start %q: %w", r.Species, r.Start, err)
	}
	end := now
	if r.End != "" {
		end, err = ParseDate(r.End)
		if err != nil {
			return SpeciesWindow{}, fmt.Errorf("%s end %q: %w", r.Species, r.End, err)
		}
	}
	return SpeciesWindow{Start: start, End: end}, nil
}
