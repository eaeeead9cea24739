package services

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Lllllllleong/tableflow/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Normalizer turns a RawTable into a rectangular, relabelled table.
type Normalizer struct {
	markers             []string
	dropRepeatedHeaders bool
	minRows             int
	columnPrefix        string
}

// NewNormalizer builds a Normalizer from the pipeline configuration.
func NewNormalizer(cfg PipelineConfig) *Normalizer {
	markers := make([]string, 0, len(cfg.BoilerplateMarkers))
	for _, m := range cfg.BoilerplateMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &Normalizer{
		markers:             markers,
		dropRepeatedHeaders: cfg.DropRepeatedHeaders,
		minRows:             cfg.MinNormalizedRows,
		columnPrefix:        cfg.ColumnPrefix,
	}
}

// Normalize runs every cleaning step in order and returns nil when the table
// collapses below the minimum row count. The input is not modified.
func (n *Normalizer) Normalize(raw models.RawTable, prov models.Provenance) *models.NormalizedTable {
	rows := cloneRows(raw.Rows)

	rows = DropEmptyRows(rows)
	rows = DropEmptyColumns(rows)
	rows = CollapseWhitespace(rows)
	if n.dropRepeatedHeaders {
		rows = DropRepeatedHeaders(rows)
	}
	rows = CutBeforeFirstNumericRow(rows)
	rows = DropBoilerplateRows(rows, n.markers)
	// Row removal can leave columns that only the removed rows filled.
	rows = DropEmptyColumns(rows)

	if len(rows) == 0 || len(rows) < n.minRows {
		return nil
	}
	columns := Relabel(rows, n.columnPrefix)
	if len(columns) == 0 {
		return nil
	}
	return &models.NormalizedTable{Columns: columns, Rows: rows, Provenance: prov}
}

// DropEmptyRows removes rows whose cells are all blank.
func DropEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		if !isBlankRow(row) {
			out = append(out, row)
		}
	}
	return out
}

// DropEmptyColumns pads ragged rows to the widest row and removes columns
// that are blank in every row. The result is rectangular.
func DropEmptyColumns(rows [][]string) [][]string {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	keep := make([]int, 0, width)
	for col := 0; col < width; col++ {
		for _, row := range rows {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				keep = append(keep, col)
				break
			}
		}
	}

	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(keep))
		for j, col := range keep {
			if col < len(row) {
				cells[j] = row[col]
			}
		}
		out[i] = cells
	}
	return out
}

// CollapseWhitespace folds each cell to NFKC, turns embedded line breaks and
// whitespace runs into single spaces and trims the ends.
func CollapseWhitespace(rows [][]string) [][]string {
	for _, row := range rows {
		for j, cell := range row {
			row[j] = collapseCell(cell)
		}
	}
	return rows
}

func collapseCell(cell string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(cell)), " ")
}

// DropRepeatedHeaders treats the first row as the literal header and removes
// later rows identical to it, as happens when a header repeats after a page
// break. A first row containing a digit is data, not a header, and disables
// the step.
func DropRepeatedHeaders(rows [][]string) [][]string {
	if len(rows) < 2 || rowHasDigit(rows[0]) {
		return rows
	}
	header := rows[0]
	out := [][]string{header}
	for _, row := range rows[1:] {
		if !equalRows(row, header) {
			out = append(out, row)
		}
	}
	return out
}

// CutBeforeFirstNumericRow drops the title and header rows that precede the
// first row containing a digit. Without any such row nothing is cut.
func CutBeforeFirstNumericRow(rows [][]string) [][]string {
	for i, row := range rows {
		if rowHasDigit(row) {
			return rows[i:]
		}
	}
	return rows
}

// DropBoilerplateRows removes rows where any cell contains one of the
// lowercased markers, compared case-insensitively.
func DropBoilerplateRows(rows [][]string, markers []string) [][]string {
	if len(markers) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		if !rowHasMarker(row, markers) {
			out = append(out, row)
		}
	}
	return out
}

// Relabel returns positional column names prefix1..prefixN for the table.
func Relabel(rows [][]string, prefix string) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, len(rows[0]))
	for i := range columns {
		columns[i] = prefix + strconv.Itoa(i+1)
	}
	return columns
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rowHasDigit(row []string) bool {
	for _, cell := range row {
		if strings.IndexFunc(cell, unicode.IsDigit) >= 0 {
			return true
		}
	}
	return false
}

func rowHasMarker(row []string, markers []string) bool {
	for _, cell := range row {
		lower := strings.ToLower(cell)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

func equalRows(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
