package dataset

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// maxReported bounds the violations listed per check.
const maxReported = 10

// Validate checks that no traffic value is missing and that (site, timestamp)
// is unique. Every violation is collected into an InvariantViolationError.
func Validate(rows []ModelRow) error {
	var result *multierror.Error

	missing := 0
	for i := range rows {
		if rows[i].HasAADF() {
			continue
		}
		missing++
		if missing <= maxReported {
			result = multierror.Append(result, fmt.Errorf("missing aadf_vehicle_count for %s at %s",
				rows[i].SiteCode, rows[i].Timestamp.UTC().Format("2006-01-02T15:04:05Z")))
		}
	}
	if missing > maxReported {
		result = multierror.Append(result, fmt.Errorf("%d rows missing aadf_vehicle_count in total", missing))
	}

	type key struct {
		site string
		ts   int64
	}
	seen := make(map[key]struct{}, len(rows))
	dups := 0
	for i := range rows {
		k := key{rows[i].SiteCode, rows[i].Timestamp.UnixMilli()}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			continue
		}
		dups++
		if dups <= maxReported {
			result = multierror.Append(result, fmt.Errorf("duplicate row for %s at %s",
				rows[i].SiteCode, rows[i].Timestamp.UTC().Format("2006-01-02T15:04:05Z")))
		}
	}
	if dups > maxReported {
		result = multierror.Append(result, fmt.Errorf("%d duplicate rows in total", dups))
	}

	if result.ErrorOrNil() == nil {
		return nil
	}
	return &InvariantViolationError{Violations: result}
}
