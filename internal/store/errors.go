package store

import "errors"

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrNotAssociable indicates an event type the user neither owns nor hosts.
var ErrNotAssociable = errors.New("event type not associable")
