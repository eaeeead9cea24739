package models

import "fmt"

// Strategy selects the extraction path for a document.
type Strategy string

const (
	StrategyStructured Strategy = "STRUCTURED"
	StrategyOCR        Strategy = "OCR"
)

// Verdict is the classifier's immutable decision for one document.
type Verdict struct {
	Strategy Strategy `firestore:"strategy" json:"strategy"`
	// Confidence is the share of sampled pages that yielded text for a
	// STRUCTURED verdict, 1 for a clean probe that found nothing, and 0 when
	// the probe itself failed.
	Confidence    float64 `firestore:"confidence" json:"confidence"`
	SampledPages  int     `firestore:"sampledPages" json:"sampledPages"`
	Indeterminate bool    `firestore:"indeterminate,omitempty" json:"indeterminate,omitempty"`
}

// PageRange is a 1-based inclusive page interval. Capabilities clamp Last to
// the real page count of the document.
type PageRange struct {
	First int
	Last  int
}

// Selection renders the range in the form pdfcpu expects for page selection.
func (r PageRange) Selection() string {
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// Clamp bounds the range to a document of pageCount pages. ok is false when
// nothing is left.
func (r PageRange) Clamp(pageCount int) (PageRange, bool) {
	if r.First < 1 {
		r.First = 1
	}
	if r.Last > pageCount {
		r.Last = pageCount
	}
	return r, r.First <= r.Last
}

// PageImage is a rasterized page handed to an OCR capability.
type PageImage struct {
	Page   int
	Format string // "png", "jpg", "tif", ...
	Data   []byte
}

// RawTable is what an extractor returns: ordered rows of cells, not
// necessarily of equal length.
type RawTable struct {
	DocumentID string
	TableIndex int
	Page       int
	Rows       [][]string
}

// Provenance identifies where a normalized table came from.
type Provenance struct {
	SourceDocumentID string   `json:"source_document_id"`
	TableIndex       int      `json:"table_index"`
	ExtractionMethod Strategy `json:"extraction_method"`
	// DocumentOrdinal is the discovery position of the source document. It
	// only orders the aggregated output and is never emitted.
	DocumentOrdinal int `json:"-"`
}

// NormalizedTable is a rectangular, relabelled table.
type NormalizedTable struct {
	Columns    []string
	Rows       [][]string
	Provenance Provenance
}

// ColumnCount is the width shared by every row.
func (t *NormalizedTable) ColumnCount() int {
	return len(t.Columns)
}

// Raw turns the table back into a RawTable so it can be normalized again.
func (t *NormalizedTable) Raw() RawTable {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string(nil), row...)
	}
	return RawTable{
		DocumentID: t.Provenance.SourceDocumentID,
		TableIndex: t.Provenance.TableIndex,
		Rows:       rows,
	}
}

// Provenance column names, appended after the data columns of a dataset.
const (
	ColumnSourceDocumentID = "source_document_id"
	ColumnTableIndex       = "table_index"
	ColumnExtractionMethod = "extraction_method"
)

// ProvenanceColumns is the fixed provenance suffix of every dataset row.
var ProvenanceColumns = []string{ColumnSourceDocumentID, ColumnTableIndex, ColumnExtractionMethod}

// MasterDataset is the union of all normalized tables of one run.
type MasterDataset struct {
	Columns   []string
	Rows      [][]string
	DataWidth int
}

// Len returns the number of data rows.
func (m *MasterDataset) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}
