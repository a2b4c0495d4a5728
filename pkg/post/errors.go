package post

import "errors"

var (
	ErrNotFound               = errors.New("post not found")
	ErrItemNotFound           = errors.New("content item not found")
	ErrDuplicatePair          = errors.New("content item already exists for language/channel pair")
	ErrInvalidTransition      = errors.New("invalid content item transition")
	ErrConcurrentModification = errors.New("post was modified concurrently")
	ErrArchived               = errors.New("post is archived")
	ErrNotTerminal            = errors.New("post has items in a non-terminal state")
)
