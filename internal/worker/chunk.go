package worker

import (
	"context"
	"time"

	"github.com/londonair/airdataset/internal/airquality"
)

// Chunk splits the inclusive day range [start, end] into consecutive,
// non-overlapping windows of at most days days. The last window may be shorter.
func Chunk(start, end time.Time, days int) []airquality.Window {
	start, end = truncateDay(start), truncateDay(end)
	if days <= 0 || end.Before(start) {
		return nil
	}

	var windows []airquality.Window
	for cur := start; !cur.After(end); {
		windowEnd := cur.AddDate(0, 0, days-1)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, airquality.Window{Start: cur, End: windowEnd})
		cur = windowEnd.AddDate(0, 0, 1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
