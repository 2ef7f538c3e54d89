package extract

import (
	"errors"
	"fmt"
)

// Extraction failure causes.
var (
	// ErrMissingDataBlock is returned when the document has no hydration block.
	ErrMissingDataBlock = errors.New("__NEXT_DATA__ not found")

	// ErrMalformedPayload is returned when the hydration block is not valid JSON.
	ErrMalformedPayload = errors.New("malformed hydration payload")

	// ErrRecordListNotFound is returned when neither lookup finds the record list.
	ErrRecordListNotFound = errors.New("cryptoCurrencyList not found in __NEXT_DATA__")
)

// ExtractionError wraps one of the extraction causes with optional detail.
type ExtractionError struct {
	Kind error
	Err  error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extract: %v", e.Kind)
}

// Is matches the cause sentinel so callers can use errors.Is(err, ErrMissingDataBlock).
func (e *ExtractionError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying detail error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
