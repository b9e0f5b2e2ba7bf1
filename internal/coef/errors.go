package coef

import "errors"

var (
	// ErrFeatureCount is returned when a feature vector does not match the
	// number of coefficients of the model it is applied to.
	ErrFeatureCount = errors.New("feature vector length mismatch")

	// ErrMissingFeature is returned when a named feature required by a table
	// is absent from the supplied feature set.
	ErrMissingFeature = errors.New("missing feature")

	// ErrInvalidTable is returned by Validate for inconsistent tables.
	ErrInvalidTable = errors.New("invalid coefficient table")

	// ErrZeroScale marks a normalization scale that is zero or not finite.
	ErrZeroScale = errors.New("feature scale must be finite and non-zero")

	ErrUnknownTable  = errors.New("unknown coefficient table")
	ErrNoActiveTable = errors.New("no active coefficient table")
)
