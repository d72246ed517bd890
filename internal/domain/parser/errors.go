package parser

import "errors"

// Parse failure causes, wrapped in model.ParseError.
var (
	ErrEmptyFile     = errors.New("empty file")
	ErrNotText       = errors.New("not a delimited text file")
	ErrHeader        = errors.New("unreadable header")
	ErrTooManyFields = errors.New("row has more fields than header")
)
