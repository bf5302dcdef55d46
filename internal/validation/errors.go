package validation

import "errors"

// Code classifies a rejection.
type Code string

const (
	CodeTokenMismatch     Code = "token_mismatch"
	CodeNegativeValues    Code = "negative_values"
	CodeUnrealisticTotals Code = "unrealistic_totals"
	CodeUnrealisticRatio  Code = "unrealistic_ratio"
	CodeMissingDaily      Code = "missing_daily"
	CodeInvalidDate       Code = "invalid_date"
	CodeFutureDate        Code = "future_date"
)

// Error rejects a whole report. Message is safe to show to end users.
type Error struct {
	Code    Code
	Date    string
	Message string
}

func newError(code Code, date, msg string) *Error {
	return &Error{Code: code, Date: date, Message: msg}
}

func (e *Error) Error() string { return e.Message }

// AsError unwraps err into a validation error if it is one.
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
