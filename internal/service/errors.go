package service

import "github.com/pkg/errors"

type ErrorCode string

const (
	ErrorCodeInvalidBody       ErrorCode = "INVALID_BODY"
	ErrorCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrorCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrorCodeInviteNotFound    ErrorCode = "INVITE_NOT_FOUND"
	ErrorCodeTeamExists        ErrorCode = "TEAM_EXISTS"
	ErrorCodeAlreadyMember     ErrorCode = "ALREADY_MEMBER"
	ErrorCodeAlreadyInvited    ErrorCode = "ALREADY_INVITED"
	ErrorCodeEmailTaken        ErrorCode = "EMAIL_TAKEN"
	ErrorCodeCannotRemoveOwner ErrorCode = "CANNOT_REMOVE_OWNER"
	ErrorCodeInvalidPassword   ErrorCode = "INVALID_PASSWORD"
	ErrorCodeInviteExpired     ErrorCode = "INVITE_EXPIRED"
	ErrorCodeBillingDisabled   ErrorCode = "BILLING_DISABLED"
	ErrorCodeUnspecified       ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"error"`
	// Details holds the first validation violation, if any.
	Details string `json:"message,omitempty"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// asError recovers the coded error from whatever a transaction returned.
// Anything that is not an *Error becomes UNSPECIFIED.
func asError(err error) error {
	if err == nil {
		return nil
	}
	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return NewError(ErrorCodeUnspecified, "internal error")
}

func internal(message string) *Error {
	return NewError(ErrorCodeUnspecified, message)
}

func forbidden() *Error {
	return NewError(ErrorCodeForbidden, "forbidden")
}

func invalid(details string) *Error {
	return NewError(ErrorCodeInvalidBody, "validation failed").WithDetails(details)
}
