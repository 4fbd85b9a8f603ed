package subscriptions

import "errors"

var ErrInvalid = errors.New("subscriptions: invalid message")
