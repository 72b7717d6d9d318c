package model

import (
	"errors"
	"fmt"
)

// ErrFlagLowered is returned when a patch tries to clear a completion flag.
var ErrFlagLowered = errors.New("completion flags are monotonic and cannot be cleared")

// ErrInvalidPatch covers the remaining validation failures: ordering
// violations and negative fees.
var ErrInvalidPatch = errors.New("invalid progress patch")

// ValidatePatch checks a patch against the record it would apply to.
// It rejects patches that clear a completion flag and patches that would
// leave a completed step ahead of an incomplete predecessor.
func ValidatePatch(current *Progress, patch ProgressPatch) error {
	for n := 1; n <= StepCount; n++ {
		c := patch.Completed(n)
		if c == nil {
			continue
		}
		if !*c && current.StepCompleted(n) {
			return fmt.Errorf("step %d: %w", n, ErrFlagLowered)
		}
	}

	// Predecessor invariant: raising step n requires step n-1 to be complete
	// already or raised by the same patch.
	for n := 2; n <= StepCount; n++ {
		c := patch.Completed(n)
		if c == nil || !*c {
			continue
		}
		prevDone := current.StepCompleted(n - 1)
		if prev := patch.Completed(n - 1); prev != nil && *prev {
			prevDone = true
		}
		if !prevDone {
			return fmt.Errorf("%w: step %d cannot complete before step %d", ErrInvalidPatch, n, n-1)
		}
	}

	for n := 1; n <= StepCount; n++ {
		fee := patchFee(patch, n)
		if fee != nil && *fee < 0 {
			return fmt.Errorf("%w: step %d fee must not be negative", ErrInvalidPatch, n)
		}
	}

	return nil
}

func patchFee(p ProgressPatch, step int) *int64 {
	switch step {
	case 1:
		return p.Step1Fee
	case 2:
		return p.Step2Fee
	case 3:
		return p.Step3Fee
	}
	return nil
}
