// Package autherrors holds the typed errors returned by the auth client.
//
// Every error in this package implements AuthError. Operations return these as
// ordinary error values; anything that does not satisfy IsAuthError is an
// unexpected failure (storage, context cancellation, encoding) that the caller
// should treat as such.
package autherrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError is implemented by every error the client recognises as part of the
// auth domain.
type AuthError interface {
	error
	Status() int
	authError()
}

// RedirectDetails carries the error and error_code parameters of a failed redirect.
type RedirectDetails struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ApiError is a structured error returned by the auth backend (400, 401, 404, ...).
type ApiError struct {
	Message    string
	StatusCode int
}

func NewApiError(message string, status int) *ApiError {
	return &ApiError{Message: message, StatusCode: status}
}

func (e *ApiError) Error() string {
	return e.Message
}

func (e *ApiError) Status() int { return e.StatusCode }
func (*ApiError) authError()    {}

// RetryableFetchError is a transport level failure that is eligible for retry:
// the request never produced a response, or the gateway answered 502/503/504.
type RetryableFetchError struct {
	Message    string
	StatusCode int
}

func NewRetryableFetchError(message string, status int) *RetryableFetchError {
	return &RetryableFetchError{Message: message, StatusCode: status}
}

func (e *RetryableFetchError) Error() string {
	return e.Message
}

func (e *RetryableFetchError) Status() int { return e.StatusCode }
func (*RetryableFetchError) authError()    {}

// InvalidCredentialsError is returned before any request is made when the
// credentials do not identify exactly one of email or phone.
type InvalidCredentialsError struct {
	Message string
}

func NewInvalidCredentialsError(message string) *InvalidCredentialsError {
	return &InvalidCredentialsError{Message: message}
}

func (e *InvalidCredentialsError) Error() string {
	return e.Message
}

func (*InvalidCredentialsError) Status() int { return http.StatusBadRequest }
func (*InvalidCredentialsError) authError()  {}

// SessionMissingError means the operation needs a session and there is none.
type SessionMissingError struct{}

func NewSessionMissingError() *SessionMissingError {
	return &SessionMissingError{}
}

func (*SessionMissingError) Error() string {
	return "Auth session missing!"
}

func (*SessionMissingError) Status() int { return http.StatusBadRequest }
func (*SessionMissingError) authError()  {}

// InvalidTokenResponseError means the backend answered successfully but the
// payload lacked a session or user.
type InvalidTokenResponseError struct{}

func NewInvalidTokenResponseError() *InvalidTokenResponseError {
	return &InvalidTokenResponseError{}
}

func (*InvalidTokenResponseError) Error() string {
	return "Auth session or user missing"
}

func (*InvalidTokenResponseError) Status() int { return http.StatusInternalServerError }
func (*InvalidTokenResponseError) authError()  {}

// ImplicitGrantRedirectError reports malformed or mismatched implicit grant
// redirect parameters.
type ImplicitGrantRedirectError struct {
	Message string
	Details *RedirectDetails
}

func NewImplicitGrantRedirectError(message string, details *RedirectDetails) *ImplicitGrantRedirectError {
	return &ImplicitGrantRedirectError{Message: message, Details: details}
}

func (e *ImplicitGrantRedirectError) Error() string {
	return e.Message
}

func (*ImplicitGrantRedirectError) Status() int { return http.StatusInternalServerError }
func (*ImplicitGrantRedirectError) authError()  {}

// PKCEGrantCodeExchangeError reports a missing code or a failed PKCE exchange
// during redirect handling.
type PKCEGrantCodeExchangeError struct {
	Message string
	Details *RedirectDetails
}

func NewPKCEGrantCodeExchangeError(message string, details *RedirectDetails) *PKCEGrantCodeExchangeError {
	return &PKCEGrantCodeExchangeError{Message: message, Details: details}
}

func (e *PKCEGrantCodeExchangeError) Error() string {
	return e.Message
}

func (*PKCEGrantCodeExchangeError) Status() int { return http.StatusInternalServerError }
func (*PKCEGrantCodeExchangeError) authError()  {}

// UnknownError wraps an unclassified failure that escaped client initialization.
type UnknownError struct {
	Message string
	Cause   error
}

func NewUnknownError(message string, cause error) *UnknownError {
	return &UnknownError{Message: message, Cause: cause}
}

func (e *UnknownError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }
func (*UnknownError) Status() int     { return 0 }
func (*UnknownError) authError()      {}

// IsAuthError reports whether err, or any error it wraps, is an AuthError.
func IsAuthError(err error) bool {
	var ae AuthError
	return errors.As(err, &ae)
}

// AsApiError returns the ApiError in err's chain, if any.
func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsApiError reports whether err is an ApiError.
func IsApiError(err error) bool {
	_, ok := AsApiError(err)
	return ok
}

// IsRetryableFetchError reports whether err is eligible for a refresh retry.
func IsRetryableFetchError(err error) bool {
	var rf *RetryableFetchError
	return errors.As(err, &rf)
}
