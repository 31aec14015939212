package domain

import "errors"

// Error kinds shared by repositories, services and the HTTP layer.
// Wrap with fmt.Errorf("%w: ...", ErrX) and test with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInUse      = errors.New("resource in use")
)
