package dataset

import (
	"math"
	"sort"
)

// ImputeStats counts how traffic gaps were filled.
type ImputeStats struct {
	Missing      int
	ForwardFill  int
	BackwardFill int
	GlobalMean   int
	Mean         float64
}

// ImputeTraffic fills missing AADF values per site along time: forward fill,
// then backward fill, then the mean of all values observed before imputing.
// rows are reordered by site and time.
func ImputeTraffic(rows []ModelRow) ImputeStats {
	var stats ImputeStats

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SiteCode != rows[j].SiteCode {
			return rows[i].SiteCode < rows[j].SiteCode
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	var sum float64
	var n int
	for i := range rows {
		if rows[i].HasAADF() {
			sum += rows[i].AADF
			n++
		} else {
			stats.Missing++
		}
	}
	stats.Mean = math.NaN()
	if n > 0 {
		stats.Mean = sum / float64(n)
	}
	if stats.Missing == 0 {
		return stats
	}

	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].SiteCode == rows[start].SiteCode {
			end++
		}
		site := rows[start:end]

		last := math.NaN()
		for i := range site {
			if site[i].HasAADF() {
				last = site[i].AADF
			} else if !math.IsNaN(last) {
				site[i].AADF = last
				stats.ForwardFill++
			}
		}

		next := math.NaN()
		for i := len(site) - 1; i >= 0; i-- {
			if site[i].HasAADF() {
				next = site[i].AADF
			} else if !math.IsNaN(next) {
				site[i].AADF = next
				stats.BackwardFill++
			}
		}

		start = end
	}

	if !math.IsNaN(stats.Mean) {
		for i := range rows {
			if !rows[i].HasAADF() {
				rows[i].AADF = stats.Mean
				stats.GlobalMean++
			}
		}
	}
	return stats
}
