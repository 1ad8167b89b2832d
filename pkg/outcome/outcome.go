// Package outcome classifies the ways a single (region, year) unit of work can end.
//
// Every component returns plain Go errors; failures that callers need to tell apart
// are wrapped in *Error carrying a Kind. errors.Is works against the Err* sentinels
// and against the wrapped cause at the same time.
package outcome

import (
	"context"
	"errors"
	"fmt"
)

// Kind names a failure class of a pipeline unit
type Kind string

const (
	// KindRemoteAbsent means the archive does not exist upstream for the unit
	KindRemoteAbsent Kind = "remote_absent"
	// KindTransport means the archive could not be retrieved (timeout, DNS, reset)
	KindTransport Kind = "transport_error"
	// KindArchiveCorrupt means the archive is not a readable container
	KindArchiveCorrupt Kind = "archive_corrupt"
	// KindLayerNotFound means the archive holds no layer carrying the marker
	KindLayerNotFound Kind = "layer_not_found"
	// KindImportConflict means the target layer already exists; a skip signal
	KindImportConflict Kind = "import_conflict"
	// KindImportFailed means the store rejected the layer conversion
	KindImportFailed Kind = "import_failed"
	// KindSpatialOp means a merge or intersection selection was rejected by the store
	KindSpatialOp Kind = "spatial_op_failure"
	// KindLocalIO means the local environment failed (disk full, permissions)
	KindLocalIO Kind = "local_io_error"
)

// Sentinels matched by errors.Is for each Kind
var (
	ErrRemoteAbsent   = errors.New("remote archive absent")
	ErrTransport      = errors.New("transport failure")
	ErrArchiveCorrupt = errors.New("archive corrupt")
	ErrLayerNotFound  = errors.New("layer not found in archive")
	ErrImportConflict = errors.New("layer already exists")
	ErrImportFailed   = errors.New("layer import failed")
	ErrSpatialOp      = errors.New("spatial operation failed")
	ErrLocalIO        = errors.New("local io failure")
	ErrUnknownKind    = errors.New("unknown outcome kind")
)

//nolint:gochecknoglobals // lookup table
var sentinels = map[Kind]error{
	KindRemoteAbsent:   ErrRemoteAbsent,
	KindTransport:      ErrTransport,
	KindArchiveCorrupt: ErrArchiveCorrupt,
	KindLayerNotFound:  ErrLayerNotFound,
	KindImportConflict: ErrImportConflict,
	KindImportFailed:   ErrImportFailed,
	KindSpatialOp:      ErrSpatialOp,
	KindLocalIO:        ErrLocalIO,
}

// Sentinel returns the sentinel error for the kind
func (k Kind) Sentinel() error {
	if err, ok := sentinels[k]; ok {
		return err
	}

	return fmt.Errorf("%w: %s", ErrUnknownKind, string(k))
}

// Fatal reports whether a failure of this kind must abort the run
func (k Kind) Fatal() bool {
	return k == KindLocalIO
}

// Error is a classified unit failure
type Error struct {
	Kind Kind
	// Op is a short description of what was attempted, usually a path, URL or layer name
	Op  string
	Err error
}

// New wraps err as a failure of the given kind
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Sentinel())
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Sentinel(), e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}

	return []error{e.Kind.Sentinel(), e.Err}
}

// KindOf extracts the kind of a classified error
func KindOf(err error) (Kind, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind, true
	}

	return "", false
}

// IsFatal reports whether err must abort the whole run. Local environment failures
// and context cancellation are fatal; every other unit failure is isolated.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if _, classified := KindOf(err); !classified {
			return true
		}
	}

	kind, ok := KindOf(err)
	if !ok {
		return false
	}

	return kind.Fatal()
}

// Label returns a metrics/ledger friendly label for err: the kind if classified,
// "ok" for nil and "error" otherwise.
func Label(err error) string {
	if err == nil {
		return "ok"
	}

	if kind, ok := KindOf(err); ok {
		return string(kind)
	}

	return "error"
}
