package services

import "errors"

// Operation failure taxonomy. Handlers map these onto HTTP codes; clients
// treat them as fatal for the attempted operation and never retry them.
var (
	ErrAccessDenied = errors.New("caller is not a participant of the conversation")
	ErrNotOwner     = errors.New("caller is not the sender of the message")
	ErrNotFound     = errors.New("record not found")
	ErrValidation   = errors.New("invalid request")
)
