package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCode        = errors.New("transfer code not found")
	ErrUnknownFile        = errors.New("file index not registered for transfer")
	ErrTransferExpired    = errors.New("transfer expired")
	ErrSenderDisconnected = errors.New("sender disconnected")
	ErrCodeSpaceExhausted = errors.New("could not issue a free code")
	ErrNotOwner           = errors.New("transfer is owned by another connection")
	ErrInvalidChunk       = errors.New("invalid chunk")
	ErrPayloadTooLarge    = errors.New("transfer payload too large")

	ErrConnectionNotFound = errors.New("connection not found")
	ErrPeerNotFound       = errors.New("target peer not connected")

	ErrValidation = errors.New("validation failed")
)

// ValidationError describes a malformed or missing message field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsNotFound reports whether err is one of the expected lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownCode) ||
		errors.Is(err, ErrUnknownFile) ||
		errors.Is(err, ErrTransferExpired) ||
		errors.Is(err, ErrSenderDisconnected)
}
