package domain

import "errors"

// ErrNoRecipient is returned when an event carries no address for the chosen channel.
var ErrNoRecipient = errors.New("recipient has no address for this channel")

type Email struct {
	To      string
	Subject string
	HTML    string
}

type SMS struct {
	To   string
	Body string
}
