package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable errors.Is checks
// at every layer instead of string matching
var (
	ErrEmptyMode   = errors.New("mode cannot be empty")
	ErrInvalidMode = errors.New("mode must be 1-32 characters, lowercase alphanumeric + hyphen only")
)
