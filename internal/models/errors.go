package models

import "errors"

// Every error returned by the gofish packages wraps exactly one of these
// sentinels. Match them with errors.Is.
var (
	// ErrConfiguration covers invalid caller input: unknown frames or
	// units, inverted bounds, shape mismatches between masks and data, or
	// spectral operations on a cube without a velocity axis.
	ErrConfiguration = errors.New("gofish: invalid configuration")

	// ErrEmptyRegion is returned when a mask or annulus selects no pixels.
	ErrEmptyRegion = errors.New("gofish: empty region")

	// ErrInternalConsistency flags shape mismatches produced internally
	// after reshaping or deprojection. It indicates a bug, not bad input.
	ErrInternalConsistency = errors.New("gofish: internal consistency")
)
