package fetch

import (
	"context"
	"errors"
	"fmt"

	"zillow-scraper/models"
)

// Client fetches the raw HTML content of a URL. Implementations must
// represent every failure as a *Failure — callers rely on the kind to
// build FailureRecords.
type Client interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Failure is the typed error returned by fetch backends once their
// internal retry budget is exhausted (or immediately, for non-transient
// failures).
type Failure struct {
	Kind   models.FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("fetch: %s: %s", f.Kind, f.Detail)
}

// AsFailure extracts the *Failure from err, synthesizing a malformed-
// response failure when err is of an unexpected type.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: models.FailMalformed, Detail: err.Error()}
}
