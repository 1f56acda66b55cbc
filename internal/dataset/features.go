package dataset

import (
	"math"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"
)

// DefaultRushHours are the local hours flagged as rush hour.
var DefaultRushHours = []int{7, 8, 9, 16, 17, 18}

// Features are the calendar and cyclical columns derived from a timestamp.
// Calendar fields use local time; DayOfWeek counts from Monday = 0.
type Features struct {
	Hour      int
	DayOfWeek int
	Month     int
	Year      int
	DayOfYear int

	IsWeekend  bool
	IsHoliday  bool
	IsRushHour bool

	HourSin, HourCos           float64
	MonthSin, MonthCos         float64
	DayOfWeekSin, DayOfWeekCos float64
	DayOfYearSin, DayOfYearCos float64
}

// One-off bank holidays in England that the gb calendar does not carry.
var (
	royalWedding2011  = oneOffHoliday("Royal Wedding", 2011, time.April, 29)
	springHoliday2012 = oneOffHoliday("Spring Bank Holiday", 2012, time.June, 4)
	diamondJubilee    = oneOffHoliday("Diamond Jubilee", 2012, time.June, 5)
	stateFuneral2022  = oneOffHoliday("State Funeral of Queen Elizabeth II", 2022, time.September, 19)

	// Spring holiday moved to June in 2012 and 2022.
	springHoliday = gb.SpringHoliday.Clone(&cal.Holiday{Except: []int{2012, 2022}})
)

func oneOffHoliday(name string, year int, month time.Month, day int) *cal.Holiday {
	return &cal.Holiday{
		Name:      name,
		Type:      cal.ObservanceBank,
		Month:     month,
		Day:       day,
		Func:      cal.CalcDayOfMonth,
		StartYear: year,
		EndYear:   year,
	}
}

// englandHolidays returns the bank holidays of England.
func englandHolidays() []*cal.Holiday {
	holidays := make([]*cal.Holiday, 0, len(gb.Holidays)+4)
	for _, h := range gb.Holidays {
		if h == gb.SpringHoliday {
			h = springHoliday
		}
		holidays = append(holidays, h)
	}
	return append(holidays, royalWedding2011, springHoliday2012, diamondJubilee, stateFuneral2022)
}

// FeatureBuilder derives Features in a fixed location. It is not safe for
// concurrent use.
type FeatureBuilder struct {
	loc      *time.Location
	rush     map[int]bool
	holidays *cal.Calendar
}

// NewFeatureBuilder creates a builder for loc with the given rush hours and
// the bank holidays of England.
func NewFeatureBuilder(loc *time.Location, rushHours []int) *FeatureBuilder {
	rush := make(map[int]bool, len(rushHours))
	for _, h := range rushHours {
		rush[h] = true
	}

	c := &cal.Calendar{Name: "England", Cacheable: true}
	c.AddHoliday(englandHolidays()...)

	return &FeatureBuilder{loc: loc, rush: rush, holidays: c}
}

// Location returns the time zone calendar features are computed in.
func (b *FeatureBuilder) Location() *time.Location {
	return b.loc
}

// Build computes the features of t.
func (b *FeatureBuilder) Build(t time.Time) Features {
	local := t.In(b.loc)

	f := Features{
		Hour:      local.Hour(),
		DayOfWeek: (int(local.Weekday()) + 6) % 7,
		Month:     int(local.Month()),
		Year:      local.Year(),
		DayOfYear: local.YearDay(),
	}
	f.IsWeekend = f.DayOfWeek >= 5
	f.IsRushHour = b.rush[f.Hour]
	actual, observed, _ := b.holidays.IsHoliday(local)
	f.IsHoliday = actual || observed

	f.HourSin, f.HourCos = cyclical(float64(f.Hour), 24)
	f.MonthSin, f.MonthCos = cyclical(float64(f.Month), 12)
	f.DayOfWeekSin, f.DayOfWeekCos = cyclical(float64(f.DayOfWeek), 7)
	f.DayOfYearSin, f.DayOfYearCos = cyclical(float64(f.DayOfYear), 365.25)
	return f
}

func cyclical(v, period float64) (float64, float64) {
	angle := 2 * math.Pi * v / period
	return math.Sin(angle), math.Cos(angle)
}
