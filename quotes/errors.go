package quotes

import "errors"

var (
	ErrInternal = errors.New("quotes: internal error")
	ErrNotFound = errors.New("quotes: not found")
)
