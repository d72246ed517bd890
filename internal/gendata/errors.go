package gendata

import "errors"

// ErrWrite wraps failures writing generated files.
var ErrWrite = errors.New("write generated data")
