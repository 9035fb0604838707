// pkg/scraper/errors.go
package scraper

import (
	"errors"
	"fmt"
)

// ErrLocationNotFound means a configured clinic name has no matching option
// in the location dropdown. It aborts that location only, never the run.
var ErrLocationNotFound = errors.New("location not found")

// AuthenticationError marks a required login step that never completed.
// It aborts the whole run.
type AuthenticationError struct {
	Step string
	Err  error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("authentication failed at %s: timed out", e.Step)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
