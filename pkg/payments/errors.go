package payments

import "net/http"

/*
Error is a payments rejection carrying the HTTP status the host answers with.
*/
type Error struct {
	Status  int
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) Is(target error) bool {
	other, ok := target.(*Error)

	if !ok {
		return false
	}

	return err.Status == other.Status
}

func (err *Error) withMessage(message string) *Error {
	return &Error{Status: err.Status, Message: message}
}

var (
	ErrUnauthorized    = &Error{Status: http.StatusUnauthorized, Message: "missing or invalid bearer token"}
	ErrPaymentRequired = &Error{Status: http.StatusPaymentRequired, Message: "insufficient credits"}
	ErrForbidden       = &Error{Status: http.StatusForbidden, Message: "token is not valid for this agent"}
	ErrRateLimited     = &Error{Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
)
