package counter

import (
	"context"

	"github.com/pkg/errors"
)

// CounterStorage is the only path between the service and persisted counter state.
// Every call is a remote round trip; implementations keep no local copy.
type CounterStorage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, name string) (int64, bool, error)
	// Set writes value unconditionally.
	Set(ctx context.Context, name string, value int64) error
	// SetNX writes value only when name is absent and reports whether it did.
	SetNX(ctx context.Context, name string, value int64) (bool, error)
	// Incr atomically adds one to an existing counter and returns the new value.
	// It returns ErrNonExistingCounter when the key is absent.
	Incr(ctx context.Context, name string) (int64, error)
	// Del removes name, it is a no-op when absent.
	Del(ctx context.Context, name string) error
	// Keys enumerates all stored counter names.
	Keys(ctx context.Context) ([]string, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

var (
	ErrNonExistingCounter = errors.New("counter does not exist")
	ErrCounterExists      = errors.New("counter already exists")
	ErrInvalidName        = errors.New("counter name is required")
)

// UnavailableError reports that the backing store could not complete a call
// at the transport level (network, timeout, protocol).
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as an UnavailableError for the given store operation.
// A nil err returns nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err, or anything it wraps, is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
