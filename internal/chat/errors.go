package chat

import "errors"

var (
	// ErrMessageNotFound is returned by reaction toggles for unknown message ids.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUsernameTaken is returned when the normalized username is already
	// reserved by another connection.
	ErrUsernameTaken = errors.New("username already taken")
)
