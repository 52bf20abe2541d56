package dbutil

import "fmt"

// Kind classifies an Error by the taxonomy of spec §7: it tells the
// caller what recovery is possible, not just what string to print.
type Kind int

const (
	// KindOther covers errors that don't need special caller handling.
	KindOther Kind = iota
	// KindArenaGrowthFailed: file extension or remap failed; the active
	// write transaction must be rolled back.
	KindArenaGrowthFailed
	// KindInvalidFileFormat: header or block invariants violated;
	// fatal to the session.
	KindInvalidFileFormat
	// KindDecryptionFailed: HMAC mismatch on a page; fatal to the session.
	KindDecryptionFailed
	// KindSchemaMismatch: leaf type does not match column type at a ref.
	KindSchemaMismatch
	// KindLogicError: API misuse; the transaction state is preserved.
	KindLogicError
	// KindCommitLogCorrupt: preamble invariants violated after a crash.
	KindCommitLogCorrupt
	// KindObserverError: exception in the observer-prep pipeline.
	KindObserverError
)

func (k Kind) String() string {
	switch k {
	case KindArenaGrowthFailed:
		return "ArenaGrowthFailed"
	case KindInvalidFileFormat:
		return "InvalidFileFormat"
	case KindDecryptionFailed:
		return "DecryptionFailed"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindLogicError:
		return "LogicError"
	case KindCommitLogCorrupt:
		return "CommitLogCorrupt"
	case KindObserverError:
		return "ObserverError"
	default:
		return "Error"
	}
}

// Error is a structured, kind-tagged error used throughout the engine.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap / errors.Is.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap creates a contextual, kind-tagged error. Returns nil if cause is nil.
func Wrap(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Cause: cause}
}

// New creates a kind-tagged error with no wrapped cause.
func New(kind Kind, context string) error {
	return &Error{Kind: kind, Context: context}
}

// Is reports whether err carries the given Kind, looking through wraps.
func Is(err error, kind Kind) bool {
	for err != nil {
		e, ok := err.(*Error)
		if !ok {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}
