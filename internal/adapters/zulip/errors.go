package zulip

import "errors"

// Sentinel kinds for transport errors.
var (
	// ErrNoAttachment signals that a message carried no CSV attachment link.
	ErrNoAttachment = errors.New("no csv attachment found")

	// ErrBadQueue signals that the server no longer recognizes our event
	// queue and a fresh registration is needed.
	ErrBadQueue = errors.New("event queue expired")
)
