package domain

import "time"

// ProcessingStatus is the terminal outcome of one article's pipeline run.
type ProcessingStatus string

const (
	StatusProcessed        ProcessingStatus = "processed"
	StatusSkippedDuplicate ProcessingStatus = "skipped_duplicate"
	StatusFailed           ProcessingStatus = "failed"
)

// FailureReason explains a FAILED result.
type FailureReason string

const (
	ReasonExtraction FailureReason = "extraction_error"
	ReasonEmpty      FailureReason = "empty_content"
	ReasonCleaning   FailureReason = "cleaning_error"
	ReasonEmbedding  FailureReason = "embedding_error"
	ReasonStorage    FailureReason = "storage_error"
	ReasonCancelled  FailureReason = "cancelled"
)

// ProcessingResult captures how far an article got and why it stopped.
type ProcessingResult struct {
	Source      string
	URL         string
	Fingerprint string
	Status      ProcessingStatus
	Reason      FailureReason
	Err         error
	// DataLoss marks failures after the fingerprint was recorded; the article will not be retried.
	DataLoss  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Processed reports whether the article reached storage.
func (r ProcessingResult) Processed() bool {
	return r.Status == StatusProcessed
}
