// Package engineerr defines the sentinel error kinds of §7. Each stage
// produces either a value or one of these wrapped errors; the orchestrator
// decides degradation vs. abort from the kind, never from string matching.
package engineerr

import "errors"

var (
	// ErrConfigMissing: no provider credentials: fatal at engine construction.
	ErrConfigMissing = errors.New("engine: config missing")

	// ErrEmbeddingUnavailable: timeout, provider error, or any batch
	// failure. Recoverable; the query degrades to BM25-only.
	ErrEmbeddingUnavailable = errors.New("engine: embedding unavailable")

	// ErrCacheTransient: persistent-store busy past its busy_timeout.
	ErrCacheTransient = errors.New("engine: cache transient failure")
)

// IsRecoverable reports whether err represents a condition the
// orchestrator should degrade from rather than abort on.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable)
}
