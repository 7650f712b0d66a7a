package auth

import (
	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/pkg/errors"
)

var (
	ErrMalformedJWT        = errors.New("JWT is not valid: not a JWT structure")
	ErrInvalidScope        = errors.New("scope contains invalid characters")
	ErrIDTokenVerification = errors.New("id token verification failed")
	ErrNonceMismatch       = errors.New("id token nonce does not match")
)

// IsAuthError reports whether err is one of the typed errors returned by the
// auth backend or the client's own validation. Anything else (storage
// failures, cancelled contexts) is an unexpected error.
func IsAuthError(err error) bool {
	return autherrors.IsAuthError(err)
}

// wrap annotates unexpected errors. Auth errors are returned untouched so
// callers can type switch on them.
func wrap(err error, message string) error {
	if err == nil || autherrors.IsAuthError(err) {
		return err
	}
	return errors.Wrap(err, message)
}
