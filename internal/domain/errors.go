package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrSecretNotFound  = errors.New("secret not found")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrFlowInProgress  = errors.New("another flow is already in progress for this chat")
	ErrUnknownFlow     = errors.New("no handler registered for flow kind")
	ErrNotConnected    = errors.New("client is not connected")
	ErrNotAuthorized   = errors.New("client is not authorized")
)
