package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// ErrNoDocuments aborts a run that was given nothing to process.
var ErrNoDocuments = errors.New("no documents supplied")

// AcquisitionError reports a document whose local content cannot be used.
type AcquisitionError struct {
	DocumentID string
	Reason     models.Reason
	Err        error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s (%s): %v", e.DocumentID, e.Reason, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ExtractionError is the single per-document failure produced at the router
// boundary. It never aborts the batch.
type ExtractionError struct {
	DocumentID string
	Strategy   models.Strategy
	Reason     models.Reason
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s via %s (%s): %v", e.DocumentID, e.Strategy, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// reasonOf maps an error from any stage to the reason code recorded in the
// run report.
func reasonOf(err error) models.Reason {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Reason
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Reason
	}
	return models.ReasonExtractorError
}
