package publish

import "errors"

var (
	// ErrPublishInFlight rejects a second publish invocation for a post
	// whose previous one has not finished.
	ErrPublishInFlight = errors.New("publish already in flight for post")
	// ErrChannelUnknown means no publisher is registered for an item's
	// channel.
	ErrChannelUnknown = errors.New("no publisher registered for channel")
)
