// Package errs defines the error-kind taxonomy used across the indexer:
// Transport, Protocol, Storage, Consistency, Config, and Cancelled. Every
// fallible boundary wraps its cause with one of these kinds so callers
// can branch on errors.Is/errors.As without parsing error strings.
package errs

import "fmt"

// Kind identifies which of the taxonomy's error categories an error
// belongs to.
type Kind string

const (
	// Transport covers daemon-unreachable, TLS, and RPC framing failures.
	Transport Kind = "transport"
	// Protocol covers unexpected RPC response shapes and consensus parse failures.
	Protocol Kind = "protocol"
	// Storage covers write faults, corruption, or missing expected rows.
	Storage Kind = "storage"
	// Consistency covers header-list contiguity violations and missing phase-2 prevouts.
	Consistency Kind = "consistency"
	// Config covers unresolvable paths and malformed addresses.
	Config Kind = "config"
	// Cancelled covers a signal observed by the driver's waiter.
	Cancelled Kind = "cancelled"
)

// Error wraps a cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same Kind, so callers can write
// errors.Is(err, errs.Consistency) directly against the sentinel kinds
// below.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == Kind(k)
}

// kindSentinel lets the Kind constants themselves be used as
// errors.Is targets (see the package-level vars below).
type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// Sentinel errors usable with errors.Is(err, errs.ErrTransport) etc.
var (
	ErrTransport   = kindSentinel(Transport)
	ErrProtocol    = kindSentinel(Protocol)
	ErrStorage     = kindSentinel(Storage)
	ErrConsistency = kindSentinel(Consistency)
	ErrConfig      = kindSentinel(Config)
	ErrCancelled   = kindSentinel(Cancelled)
)

// New wraps err with kind and an operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transportf builds a Transport-kind error.
func Transportf(op string, format string, args ...any) *Error {
	return New(Transport, op, fmt.Errorf(format, args...))
}

// Protocolf builds a Protocol-kind error.
func Protocolf(op string, format string, args ...any) *Error {
	return New(Protocol, op, fmt.Errorf(format, args...))
}

// Storagef builds a Storage-kind error.
func Storagef(op string, format string, args ...any) *Error {
	return New(Storage, op, fmt.Errorf(format, args...))
}

// Consistencyf builds a Consistency-kind error.
func Consistencyf(op string, format string, args ...any) *Error {
	return New(Consistency, op, fmt.Errorf(format, args...))
}

// Configf builds a Config-kind error.
func Configf(op string, format string, args ...any) *Error {
	return New(Config, op, fmt.Errorf(format, args...))
}
