package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrTemporary        = errors.New("temporary failure")
	ErrTuningValidation = errors.New("tuning validation failed")
	ErrInsufficientData = errors.New("insufficient data")
)

var (
	errThresholdRange  = errors.New("thresholds must lie strictly inside (0,1)")
	errComplexityOrder = errors.New("complexity_simple must be below complexity_complex")
	errConfidenceOrder = errors.New("confidence_low must be below confidence_high")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
