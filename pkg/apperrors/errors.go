package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// AppError is the domain error carried from the service layer to the
// transport boundary. Code is stable; Message is safe to return to callers.
type AppError struct {
	Code    Code     `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missingKeys,omitempty"`
	Cause   error    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidInput(msg string) error {
	return New(CodeInvalidInput, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CryptoFailure is deliberately generic: the message never says whether the
// key, the ciphertext or the IV was at fault.
func CryptoFailure(cause error) error {
	return &AppError{Code: CodeCryptoFailure, Message: "cryptographic operation failed", Cause: cause}
}

// MissingKeys reports participants without a registered public key. The id
// list rides along so the transport layer can return it verbatim.
func MissingKeys(msg string, ids []string) error {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("%s: %s", msg, strings.Join(ids, ", ")),
		Missing: ids,
	}
}

// CodeOf extracts the stable code from any error in the chain, defaulting to
// CodeInternal for errors that never passed through a constructor.
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeInternal
}

// MissingFrom returns the missing-key id list if err carries one.
func MissingFrom(err error) []string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Missing
	}
	return nil
}
