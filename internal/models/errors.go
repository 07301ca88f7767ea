package models

import "errors"

// Configuration errors are fatal and never retried automatically; transient
// provider and store failures are wrapped with fmt.Errorf("%w") at the call
// site so callers can still reach these sentinels with errors.Is.
var (
	// ErrDimensionMismatch means a vector's length does not match the
	// collection's configured dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCollectionMissing means the collection does not exist and the
	// operation did not ask for it to be created.
	ErrCollectionMissing = errors.New("collection does not exist")

	// ErrEmptyQuery means the search request carried no query text.
	ErrEmptyQuery = errors.New("query cannot be empty")
)
