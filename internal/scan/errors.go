package scan

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a scan or business does not exist.
var ErrNotFound = errors.New("not found")

// ErrQueueClosed is returned by queue operations after shutdown has
// stopped the queue from accepting or handing out work.
var ErrQueueClosed = errors.New("queue closed")

// ProviderError is a non-success response from the search provider. The
// orchestrator skips the unit of work that triggered it instead of
// failing the whole scan.
type ProviderError struct {
	Status  string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error: %s", e.Status)
	}
	return fmt.Sprintf("provider error: %s - %s", e.Status, e.Message)
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
