package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInputNotFound   = errors.New("input not found")
	ErrInvalidHint     = errors.New("invalid input type hint")
	ErrProviderFailure = errors.New("provider failure")
	ErrJobTerminal     = errors.New("job already terminal")
)
