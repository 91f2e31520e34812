package comport

import "errors"

var (
	// ErrPortUnavailable is returned when a transport cannot be opened or is used while closed.
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrTimeout is returned by transports whose blocking call ran out of time.
	ErrTimeout = errors.New("port timeout")
	// ErrLinkLost is returned when a connected link went silent or dropped.
	ErrLinkLost = errors.New("link lost")
)
