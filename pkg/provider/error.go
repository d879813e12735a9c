package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error wraps provider failures with status metadata.
type Error struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("provider error (status=%d)", e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrNotConfigured marks a provider that cannot be constructed because its
// credentials are missing. The router treats it as unavailable, not failed.
var ErrNotConfigured = errors.New("provider not configured")

// IsTransient reports whether a provider failure may succeed on a later
// attempt. The router uses it to decide whether re-walking an exhausted
// chain is worthwhile: a caller-side cancellation or a rejected request
// will fail identically next time, while timeouts, rate limits, and
// upstream outages are worth another pass.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var provErr *Error
	if !errors.As(err, &provErr) {
		return false
	}
	return provErr.Temporary || provErr.Status == 429 ||
		(provErr.Status >= 500 && provErr.Status <= 599)
}
