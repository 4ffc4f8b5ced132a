package domain

import "errors"

var (
	ErrReadFailed      = errors.New("failed to read message")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidKey      = errors.New("invalid message key")
)
