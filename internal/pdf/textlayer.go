// Package pdf implements the PDF capabilities of the pipeline: probing and
// reading the text layer, and rasterizing scanned pages for OCR.
package pdf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Lllllllleong/tableflow/internal/models"
	pdfreader "github.com/ledongthuc/pdf"
)

// TextLayer reads the embedded text of a PDF. It recovers tables in stream
// mode: glyphs are grouped into lines, lines are split into cells on wide
// horizontal gaps, and runs of multi-cell lines become tables.
type TextLayer struct {
	// RowTolerance is the vertical distance within which glyphs share a line.
	RowTolerance float64
	// CellGap is the horizontal gap, in multiples of the font size, that
	// separates two cells.
	CellGap float64
	// WordGap is the gap, in multiples of the font size, that inserts a space
	// inside a cell.
	WordGap float64
}

// NewTextLayer returns a TextLayer with defaults suited to typical report
// layouts.
func NewTextLayer() *TextLayer {
	return &TextLayer{RowTolerance: 2.0, CellGap: 1.0, WordGap: 0.15}
}

// ProbePages returns the text of the first maxPages pages.
func (t *TextLayer) ProbePages(ctx context.Context, path string, maxPages int) (pages []string, err error) {
	defer recoverInto(&err, "probe "+path)

	f, r, err := pdfreader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n := min(r.NumPage(), maxPages)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		var b strings.Builder
		for _, g := range p.Content().Text {
			b.WriteString(g.S)
		}
		pages = append(pages, b.String())
	}
	return pages, nil
}

// PageCount returns the number of pages in the document.
func (t *TextLayer) PageCount(ctx context.Context, path string) (n int, err error) {
	defer recoverInto(&err, "count pages "+path)

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, r, err := pdfreader.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// ExtractTables returns the tables found on the pages in rng, in page order.
func (t *TextLayer) ExtractTables(ctx context.Context, path string, rng models.PageRange) (tables []models.RawTable, err error) {
	defer recoverInto(&err, "extract "+path)

	f, r, err := pdfreader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	rng, ok := rng.Clamp(r.NumPage())
	if !ok {
		return nil, nil
	}
	for i := rng.First; i <= rng.Last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, rows := range t.pageTables(p.Content().Text) {
			tables = append(tables, models.RawTable{Page: i, Rows: rows})
		}
	}
	return tables, nil
}

func (t *TextLayer) pageTables(glyphs []pdfreader.Text) [][][]string {
	var lines [][]cell
	for _, line := range groupLines(glyphs, t.RowTolerance) {
		lines = append(lines, splitCells(line, t.CellGap, t.WordGap))
	}

	var tables [][][]string
	for _, region := range tableRegions(lines) {
		tables = append(tables, alignColumns(region))
	}
	return tables
}

// cell is a run of glyphs on one line with its horizontal extent.
type cell struct {
	x0, x1 float64
	text   string
}

// groupLines buckets glyphs whose baselines lie within tol of each other and
// returns the lines top to bottom, each sorted left to right.
func groupLines(glyphs []pdfreader.Text, tol float64) [][]pdfreader.Text {
	type bucket struct {
		yMin, yMax float64
		glyphs     []pdfreader.Text
	}
	var buckets []*bucket
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		var hit *bucket
		for _, b := range buckets {
			if g.Y >= b.yMin-tol && g.Y <= b.yMax+tol {
				hit = b
				break
			}
		}
		if hit == nil {
			hit = &bucket{yMin: g.Y, yMax: g.Y}
			buckets = append(buckets, hit)
		}
		hit.glyphs = append(hit.glyphs, g)
		hit.yMin = math.Min(hit.yMin, g.Y)
		hit.yMax = math.Max(hit.yMax, g.Y)
	}

	// PDF y grows upwards.
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].yMax > buckets[j].yMax })

	lines := make([][]pdfreader.Text, len(buckets))
	for i, b := range buckets {
		sort.SliceStable(b.glyphs, func(i, j int) bool { return b.glyphs[i].X < b.glyphs[j].X })
		lines[i] = b.glyphs
	}
	return lines
}

// splitCells merges the glyphs of one line into cells. A gap wider than
// cellGap font sizes starts a new cell; a gap wider than wordGap font sizes
// inside a cell becomes a space.
func splitCells(line []pdfreader.Text, cellGap, wordGap float64) []cell {
	var cells []cell
	var b strings.Builder
	var cur *cell

	flush := func() {
		if cur == nil {
			return
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			cur.text = text
			cells = append(cells, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, g := range line {
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		if cur != nil {
			gap := g.X - cur.x1
			switch {
			case gap > cellGap*size:
				flush()
			case gap > wordGap*size && !endsInSpace(b.String()):
				b.WriteByte(' ')
			}
		}
		if cur == nil {
			if isBlank(g.S) {
				continue
			}
			cur = &cell{x0: g.X, x1: g.X}
		}
		b.WriteString(g.S)
		cur.x1 = math.Max(cur.x1, g.X+g.W)
	}
	flush()
	return cells
}

// tableRegions returns the maximal runs of consecutive lines with at least
// two cells.
func tableRegions(lines [][]cell) [][][]cell {
	var regions [][][]cell
	var run [][]cell
	for _, line := range lines {
		if len(line) >= 2 {
			run = append(run, line)
			continue
		}
		if len(run) > 0 {
			regions = append(regions, run)
			run = nil
		}
	}
	if len(run) > 0 {
		regions = append(regions, run)
	}
	return regions
}

// alignColumns derives column spans by merging the horizontal extents of all
// cells in a region, then places each cell in the span that contains it.
// Cells that land in the same column are joined with a space.
func alignColumns(region [][]cell) [][]string {
	type span struct{ x0, x1 float64 }
	var extents []span
	for _, line := range region {
		for _, c := range line {
			extents = append(extents, span{c.x0, c.x1})
		}
	}
	sort.Slice(extents, func(i, j int) bool { return extents[i].x0 < extents[j].x0 })

	var columns []span
	for _, e := range extents {
		if n := len(columns); n > 0 && e.x0 <= columns[n-1].x1 {
			columns[n-1].x1 = math.Max(columns[n-1].x1, e.x1)
			continue
		}
		columns = append(columns, e)
	}

	rows := make([][]string, len(region))
	for i, line := range region {
		row := make([]string, len(columns))
		for _, c := range line {
			col := sort.Search(len(columns), func(k int) bool { return columns[k].x1 >= c.x0 })
			if col == len(columns) {
				col = len(columns) - 1
			}
			if row[col] != "" {
				row[col] += " "
			}
			row[col] += c.text
		}
		rows[i] = row
	}
	return rows
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func endsInSpace(s string) bool {
	if s == "" {
		return true
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

// recoverInto turns a panic inside the PDF parser into an error.
func recoverInto(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: pdf parser panicked: %v", op, r)
	}
}
