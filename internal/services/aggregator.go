package services

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/Lllllllleong/tableflow/internal/models"
)

// Aggregator unions normalized tables of any width into one dataset.
type Aggregator struct {
	columnPrefix string
	logger       *slog.Logger
}

// NewAggregator creates an Aggregator that names data columns with the
// configured prefix.
func NewAggregator(cfg PipelineConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{columnPrefix: cfg.ColumnPrefix, logger: logger}
}

// Aggregate pads every table on the right to the widest table and appends the
// provenance columns. Rows are ordered by document discovery order, then by
// table index, then by their position in the table. No tables yields an empty
// dataset with only the provenance columns.
func (a *Aggregator) Aggregate(tables []*models.NormalizedTable) *models.MasterDataset {
	ordered := make([]*models.NormalizedTable, 0, len(tables))
	width := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		ordered = append(ordered, t)
		width = max(width, t.ColumnCount())
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].Provenance, ordered[j].Provenance
		if pi.DocumentOrdinal != pj.DocumentOrdinal {
			return pi.DocumentOrdinal < pj.DocumentOrdinal
		}
		return pi.TableIndex < pj.TableIndex
	})

	columns := make([]string, 0, width+len(models.ProvenanceColumns))
	for i := 1; i <= width; i++ {
		columns = append(columns, a.columnPrefix+strconv.Itoa(i))
	}
	columns = append(columns, models.ProvenanceColumns...)

	dataset := &models.MasterDataset{Columns: columns, Rows: [][]string{}, DataWidth: width}
	for _, t := range ordered {
		prov := t.Provenance
		suffix := []string{prov.SourceDocumentID, strconv.Itoa(prov.TableIndex), string(prov.ExtractionMethod)}
		for _, row := range t.Rows {
			out := make([]string, len(columns))
			copy(out, row)
			copy(out[width:], suffix)
			dataset.Rows = append(dataset.Rows, out)
		}
	}

	a.logger.Info("Aggregation complete.", "tableCount", len(ordered), "rowCount", len(dataset.Rows), "dataWidth", width)
	return dataset
}
