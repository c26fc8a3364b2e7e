package orchestrator

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded signals that the rate budget denied a fetch. Recoverable:
// the session stays pending and the caller retries later.
var ErrQuotaExceeded = errors.New("api call budget exhausted")

// MalformedPageError marks a page that failed validation on its way into
// the analyzers. The page is rejected; pages merged before it stay durable.
type MalformedPageError struct {
	Page   int
	Reason string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %d: %s", e.Page, e.Reason)
}
