package provider

import "errors"

var (
	ErrNotFound       = errors.New("provider: not found")
	ErrUnauthorized   = errors.New("provider: unauthorized")
	ErrRateLimited    = errors.New("provider: rate limited")
	ErrTemporary      = errors.New("provider: temporary failure")
	ErrInvalidConfig  = errors.New("provider: invalid config")
	ErrFailedResponse = errors.New("provider: server reported failure")
	ErrMalformed      = errors.New("provider: malformed response")
)

func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool   { return errors.Is(err, ErrUnauthorized) }
func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsTemporary(err error) bool      { return errors.Is(err, ErrTemporary) }
func IsFailedResponse(err error) bool { return errors.Is(err, ErrFailedResponse) }
func IsMalformed(err error) bool      { return errors.Is(err, ErrMalformed) }
