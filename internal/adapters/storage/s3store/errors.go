package s3store

import "errors"

// ErrNoBucket is returned when no bucket name is configured.
var ErrNoBucket = errors.New("bucket name is required")
