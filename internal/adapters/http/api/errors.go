package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrInternal = errors.New("internal error")
)
