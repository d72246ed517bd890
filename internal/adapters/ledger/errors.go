package ledger

import "errors"

// ErrLedger wraps every ledger read or write failure.
var ErrLedger = errors.New("ledger error")
