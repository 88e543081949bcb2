// Package errors provides structured error handling with error codes for simple-mfa.
//
// Every service returns *Error values tagged with one of a small set of
// codes, and the HTTP layer maps them to status codes:
//
//	INVALID_INPUT           400
//	UNAUTHORIZED            401
//	PROVIDER_LOOKUP_FAILED  401
//	REPLAYED_ASSERTION      401
//	FORBIDDEN               403
//	NOT_FOUND               404
//	CONFLICT                409
//	RATE_LIMIT_EXCEEDED     429
//	INTERNAL_ERROR          500
//
// Usage:
//
//	import "github.com/tendant/simple-mfa/pkg/errors"
//
//	err := errors.New(errors.ErrCodeConflict, "email already in use")
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to query account")
//
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//	    ...
//	}
//
// Because this package shadows the standard library name, callers that need
// errors.Is or errors.As import the standard package under another name.
package errors
