package normalize

import "errors"

// ErrUnknownRounding is returned for an unrecognised rounding mode name.
var ErrUnknownRounding = errors.New("unknown rounding mode")
