package models

// These structs define the JSON payloads exchanged between the Cloud
// Workflow and the extraction functions.

// BatchExtractRequest is the input for the batch-extractor function.
type BatchExtractRequest struct {
	RunID  string `json:"runId"`
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// BatchExtractResponse is the output of the batch-extractor function.
type BatchExtractResponse struct {
	Status        string `json:"status"`
	RunID         string `json:"runId"`
	DatasetGCSUri string `json:"datasetGcsUri"`
	ReportGCSUri  string `json:"reportGcsUri"`
	Extracted     int    `json:"extracted"`
	Failed        int    `json:"failed"`
	Rows          int    `json:"rows"`
}

// DatasetPublishedEvent is the argument passed to the downstream workflow
// once a dataset has been written.
type DatasetPublishedEvent struct {
	RunID         string `json:"runId"`
	DocumentID    string `json:"documentId,omitempty"`
	DatasetGCSUri string `json:"datasetGcsUri"`
	Rows          int    `json:"rows"`
}
