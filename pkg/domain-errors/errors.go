// Package domainerrors carries coded errors from services to transports.
//
// Services return *Error values with a Code; transports translate codes into
// status codes without string matching. Store-level facts travel as
// pkg/platform/sentinel errors and are wrapped here at the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

// Ambient codes shared by every module.
const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Ledger codes. Each one is caused by a violated precondition and recurs until
// the caller changes its inputs.
const (
	CodeAlreadyRegistered   Code = "already_registered"
	CodeInvalidTransition   Code = "invalid_transition"
	CodeInvalidRole         Code = "invalid_role"
	CodeNotRegistered       Code = "not_registered"
	CodeNotAdmin            Code = "not_admin"
	CodeNotApproved         Code = "not_approved"
	CodeRoleNotAuthorized   Code = "role_not_authorized"
	CodeInvalidSupply       Code = "invalid_supply"
	CodeParentNotFound      Code = "parent_not_found"
	CodeTokenNotFound       Code = "token_not_found"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeInvalidAmount       Code = "invalid_amount"
	CodeSelfTransfer        Code = "self_transfer"
	CodeTransferNotFound    Code = "transfer_not_found"
	CodeNotRecipient        Code = "not_recipient"
	CodeNotPending          Code = "not_pending"
)

// Error is a coded domain error. Err, when set, is the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries none. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
