package dataset

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
)

// ErrEmptyResult is returned when a join leaves no rows to write.
var ErrEmptyResult = errors.New("dataset: merge produced no rows")

// MissingSourceFileError reports an upstream artifact that does not exist.
type MissingSourceFileError struct {
	Path string
}

func (e *MissingSourceFileError) Error() string {
	return fmt.Sprintf("missing source file %s: run the upstream stage first", e.Path)
}

// RequireFiles fails with a MissingSourceFileError for the first absent path.
func RequireFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return &MissingSourceFileError{Path: p}
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return nil
}

// InvariantViolationError aggregates every failed check of the final table.
type InvariantViolationError struct {
	Violations *multierror.Error
}

func (e *InvariantViolationError) Error() string {
	return "final table failed validation: " + e.Violations.Error()
}

func (e *InvariantViolationError) Unwrap() error {
	return e.Violations.ErrorOrNil()
}
