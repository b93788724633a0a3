// Package errors defines the error taxonomy shared by the market modules.
// Every rejection is a coded *Error carrying one of four kinds so transports can
// map failures without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a command was rejected.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed caller input (price, percentage, duration).
	KindValidation
	// KindState marks commands that are invalid for the current lifecycle state.
	KindState
	// KindAuthorization marks callers that are not the required actor.
	KindAuthorization
	// KindTransfer marks failures reported by the asset or value ledger.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// CodeTransferFailed is the code shared by every wrapped ledger failure.
const CodeTransferFailed = "transfer_failed"

// Error is a classified, coded error. Two errors match under errors.Is when
// their codes are equal, so wrapped instances still match package sentinels.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New returns a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports code equality with another *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// Wrap returns a copy of e carrying an additional cause.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.Err = cause
	return &clone
}

// Transfer wraps a ledger failure. op names the movement that failed.
func Transfer(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:    KindTransfer,
		Code:    CodeTransferFailed,
		Message: "transfer failed: " + op,
		Err:     cause,
	}
}

// ErrTransferFailed matches any error produced by Transfer.
var ErrTransferFailed = New(KindTransfer, CodeTransferFailed, "transfer failed")

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the outermost *Error in err's chain.
func CodeOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
