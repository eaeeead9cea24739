package models

import "time"

// Reason is the code recorded for a failed document.
type Reason string

const (
	ReasonUnreadable        Reason = "unreadable"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonExtractorError    Reason = "extractor_error"
	ReasonExtractorPanic    Reason = "extractor_panic"
	ReasonNoTables          Reason = "no_tables"
	ReasonCanceled          Reason = "canceled"
)

// Failure describes why one document did not reach EXTRACTED. Stage is the
// last status the document reached before it failed.
type Failure struct {
	DocumentID string `firestore:"documentId" json:"documentId"`
	Stage      Status `firestore:"stage" json:"stage"`
	Reason     Reason `firestore:"reason" json:"reason"`
	Detail     string `firestore:"detail,omitempty" json:"detail,omitempty"`
}

// RunReport summarizes one pipeline run. Stage counts mean "reached at least
// this stage", so Acquired >= Classified >= Extracted.
type RunReport struct {
	RunID      string    `firestore:"runId" json:"runId"`
	StartedAt  time.Time `firestore:"startedAt" json:"startedAt"`
	FinishedAt time.Time `firestore:"finishedAt" json:"finishedAt"`

	Total      int `firestore:"total" json:"total"`
	Acquired   int `firestore:"acquired" json:"acquired"`
	Classified int `firestore:"classified" json:"classified"`
	Extracted  int `firestore:"extracted" json:"extracted"`
	Failed     int `firestore:"failed" json:"failed"`

	Structured    int `firestore:"structured" json:"structured"`
	OCR           int `firestore:"ocr" json:"ocr"`
	Indeterminate int `firestore:"indeterminate" json:"indeterminate"`

	TablesExtracted int `firestore:"tablesExtracted" json:"tablesExtracted"`
	TablesEmitted   int `firestore:"tablesEmitted" json:"tablesEmitted"`
	TablesDiscarded int `firestore:"tablesDiscarded" json:"tablesDiscarded"`
	Rows            int `firestore:"rows" json:"rows"`
	DataWidth       int `firestore:"dataWidth" json:"dataWidth"`

	Failures []Failure `firestore:"failures,omitempty" json:"failures,omitempty"`
}

// Record folds a finished document into the counts.
func (r *RunReport) Record(doc *Document, stageReached Status) {
	r.Total++
	switch stageReached {
	case StatusExtracted:
		r.Extracted++
		fallthrough
	case StatusClassified:
		r.Classified++
		fallthrough
	case StatusAcquired:
		r.Acquired++
	}
	if doc.Verdict != nil {
		switch doc.Verdict.Strategy {
		case StrategyStructured:
			r.Structured++
		case StrategyOCR:
			r.OCR++
		}
		if doc.Verdict.Indeterminate {
			r.Indeterminate++
		}
	}
	if doc.Status == StatusFailed {
		r.Failed++
		r.Failures = append(r.Failures, Failure{
			DocumentID: doc.ID,
			Stage:      stageReached,
			Reason:     doc.FailureReason,
			Detail:     doc.ErrorDetails,
		})
	}
}
