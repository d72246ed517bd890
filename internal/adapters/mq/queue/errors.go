package queue

import "errors"

// ErrClosed is returned when enqueuing onto a closed queue.
var ErrClosed = errors.New("queue closed")
