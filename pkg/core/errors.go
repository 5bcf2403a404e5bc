package core

import (
	"errors"
	"fmt"
)

// Error codes carried by *Error.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeInvalidState  = "INVALID_STATE"
)

// Error is a coded error for misuse of a helper: bad input, a bad
// configuration or a call on an object in the wrong state.
type Error struct {
	Code    string
	Message string
}

// Errorf builds an *Error with a formatted message.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// HasCode reports whether err is, or wraps, an *Error with code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
