package domain

import (
	"errors"
	"fmt"
)

// Error classes raised by pipeline collaborators. Match with errors.Is.
var (
	ErrDiscovery  = errors.New("discovery error")
	ErrExtraction = errors.New("extraction error")
	ErrCleaning   = errors.New("cleaning error")
	ErrEmbedding  = errors.New("embedding error")
	ErrStorage    = errors.New("storage error")
	// ErrDuplicate signals duplicate index corruption or unavailability. It is fatal for a cycle.
	ErrDuplicate = errors.New("duplicate index error")
)

// StageError attaches the error class and the source to an underlying failure.
type StageError struct {
	Kind   error
	Source string
	Err    error
}

func (e *StageError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newStageError(kind error, source string, err error) error {
	if err == nil {
		err = kind
	}
	return &StageError{Kind: kind, Source: source, Err: err}
}

func DiscoveryError(source string, err error) error  { return newStageError(ErrDiscovery, source, err) }
func ExtractionError(source string, err error) error { return newStageError(ErrExtraction, source, err) }
func CleaningError(source string, err error) error   { return newStageError(ErrCleaning, source, err) }
func EmbeddingError(source string, err error) error  { return newStageError(ErrEmbedding, source, err) }
func StorageError(source string, err error) error    { return newStageError(ErrStorage, source, err) }
func DuplicateError(source string, err error) error  { return newStageError(ErrDuplicate, source, err) }

// IsFatal reports whether err must abort the running cycle.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
