package proxy

import "errors"

// ErrInvalidRule is returned when a proxy rule fails validation.
var ErrInvalidRule = errors.New("invalid proxy rule")
