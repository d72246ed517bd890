package service

import "errors"

// Pipeline configuration and run errors.
var (
	ErrNoStore        = errors.New("no source store configured")
	ErrInvalidPattern = errors.New("invalid include pattern")
	ErrUnknownPolicy  = errors.New("unknown failure policy")
	ErrNotVisible     = errors.New("uploaded files not yet visible")
)
