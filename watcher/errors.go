package watcher

import "errors"

var (
	ErrInternal = errors.New("watcher: internal error")
	ErrInvalid  = errors.New("watcher: invalid input")
)
