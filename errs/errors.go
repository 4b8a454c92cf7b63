// Package errs provides the error type shared by every AtlasDB layer.
//
// The parser, the executor and the storage engines all report failures as
// *errs.Error. The store projects them into a failed Result, so callers
// only ever check Result.Success; Go callers that want the detail use the
// Is* predicates on Result.Err().
//
//	res := store.Execute(ctx, "DELETE FROM saved_items")
//	if errs.IsUnsafeOperation(res.Err()) {
//	    // refused: no id predicate
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kind categorises an error independently of the layer that produced it.
type Kind int

const (
	KindUnknown         Kind = iota
	KindSyntax               // malformed query, missing clause
	KindUnsafeOperation      // DELETE without an id predicate
	KindEngine               // storage engine rejected the transaction
	KindNotFound             // unknown table
	KindInvalidInput         // bad params from the caller
	KindDuplicateKey         // strict insert of an existing key
	KindTimeout              // context deadline / cancellation
	KindClosed               // store already closed
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax_error"
	case KindUnsafeOperation:
		return "unsafe_operation"
	case KindEngine:
		return "engine_error"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by AtlasDB.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error around an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func IsSyntax(err error) bool          { return KindOf(err) == KindSyntax }
func IsUnsafeOperation(err error) bool { return KindOf(err) == KindUnsafeOperation }
func IsEngine(err error) bool          { return KindOf(err) == KindEngine }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsInvalidInput(err error) bool    { return KindOf(err) == KindInvalidInput }
func IsDuplicateKey(err error) bool    { return KindOf(err) == KindDuplicateKey }
func IsTimeout(err error) bool         { return KindOf(err) == KindTimeout }
func IsClosed(err error) bool          { return KindOf(err) == KindClosed }

// KindOf extracts the Kind from the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
