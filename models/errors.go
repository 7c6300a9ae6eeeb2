package models

import "errors"

// ErrInsufficientData is returned by a stage whose input has too few rows to
// produce a meaningful output.
var ErrInsufficientData = errors.New("insufficient data")
