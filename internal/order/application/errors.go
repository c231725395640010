package application

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrIntentConflict = errors.New("payment intent already attached to another order")
)
