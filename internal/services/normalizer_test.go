package services

import (
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestNormalizeReportTitleTable(t *testing.T) {
	n := NewNormalizer(DefaultPipelineConfig())
	raw := models.RawTable{Rows: [][]string{
		{"Report Title"},
		{"Year", "Qty"},
		{"2020", "50"},
		{"Source: Agency"},
	}}
	prov := models.Provenance{SourceDocumentID: "annual_report", TableIndex: 0, ExtractionMethod: models.StrategyStructured}

	got := n.Normalize(raw, prov)
	if got == nil {
		t.Fatal("Normalize() = nil, want one row")
	}
	want := &models.NormalizedTable{
		Columns:    []string{"Column_1", "Column_2"},
		Rows:       [][]string{{"2020", "50"}},
		Provenance: prov,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeDiscards(t *testing.T) {
	tests := []struct {
		name    string
		minRows int
		rows    [][]string
	}{
		{"no rows", 1, nil},
		{"only blank cells", 1, [][]string{{"", "  "}, {"\n", ""}}},
		{"only boilerplate", 1, [][]string{{"Year"}, {"2020 source: agency"}}},
		{"below minimum", 2, [][]string{{"Year", "Qty"}, {"2020", "50"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			cfg.MinNormalizedRows = tt.minRows
			if got := NewNormalizer(cfg).Normalize(models.RawTable{Rows: tt.rows}, models.Provenance{}); got != nil {
				t.Errorf("Normalize() = %+v, want nil", got)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewNormalizer(DefaultPipelineConfig())
	inputs := [][][]string{
		{
			{"Quarterly Figures", "", ""},
			{"Region", "", "Total"},
			{"North ", "", " 1,200"},
			{"South\nEast", "", "980"},
			{"", "", ""},
			{"Source: Ministry", "", ""},
		},
		{
			{"Name", "Value"},
			{"alpha", "beta"},
			{"Name", "Value"},
			{"gamma", "delta"},
		},
		{
			{"１２", "ｋｇ"},
			{"7", "", "extra"},
		},
	}
	for i, rows := range inputs {
		first := n.Normalize(models.RawTable{Rows: rows}, models.Provenance{TableIndex: i})
		if first == nil {
			t.Fatalf("input %d: first pass discarded the table", i)
		}
		second := n.Normalize(first.Raw(), first.Provenance)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("input %d: second pass changed the table (-first +second):\n%s", i, diff)
		}
	}
}

func TestNormalizeCleanTableRoundTrips(t *testing.T) {
	rows := [][]string{
		{"2019", "North", "10.5"},
		{"2020", "South", "11"},
		{"2021", "East", "n/a"},
	}
	got := NewNormalizer(DefaultPipelineConfig()).Normalize(models.RawTable{Rows: rows}, models.Provenance{})
	if got == nil {
		t.Fatal("Normalize() = nil")
	}
	if diff := cmp.Diff(rows, got.Rows); diff != "" {
		t.Errorf("clean table was modified (-want +got):\n%s", diff)
	}
	if got.ColumnCount() != 3 {
		t.Errorf("ColumnCount() = %d, want 3", got.ColumnCount())
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	rows := [][]string{{"  a  b ", "1"}, {"", ""}}
	raw := models.RawTable{Rows: rows}
	NewNormalizer(DefaultPipelineConfig()).Normalize(raw, models.Provenance{})
	if rows[0][0] != "  a  b " || len(rows) != 2 {
		t.Errorf("input rows were modified: %q", rows)
	}
}

func TestDropEmptyRows(t *testing.T) {
	got := DropEmptyRows([][]string{{"", " "}, {"a", ""}, {}, {"\t"}, {"", "b"}})
	want := [][]string{{"a", ""}, {"", "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DropEmptyRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestDropEmptyColumns(t *testing.T) {
	got := DropEmptyColumns([][]string{
		{"a", "", "c"},
		{"d", " "},
		{"", "", "f", ""},
	})
	want := [][]string{
		{"a", "c"},
		{"d", ""},
		{"", "f"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DropEmptyColumns() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace([][]string{{"  total\n revenue ", "a b", "ﬁve", "１２３"}})
	want := [][]string{{"total revenue", "a b", "five", "123"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CollapseWhitespace() mismatch (-want +got):\n%s", diff)
	}
}

func TestCutBeforeFirstNumericRow(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want [][]string
	}{
		{
			name: "title and header cut",
			rows: [][]string{{"Title"}, {"Year"}, {"2020"}, {"after"}},
			want: [][]string{{"2020"}, {"after"}},
		},
		{
			name: "first row numeric",
			rows: [][]string{{"x1"}, {"y"}},
			want: [][]string{{"x1"}, {"y"}},
		},
		{
			name: "no digits anywhere",
			rows: [][]string{{"a"}, {"b"}},
			want: [][]string{{"a"}, {"b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, CutBeforeFirstNumericRow(tt.rows)); diff != "" {
				t.Errorf("CutBeforeFirstNumericRow() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDropBoilerplateRows(t *testing.T) {
	rows := [][]string{{"2020", "50"}, {"SOURCE: Agency", ""}, {"2021", "Data source"}, {"2022", "7"}}
	got := DropBoilerplateRows(rows, []string{"source"})
	want := [][]string{{"2020", "50"}, {"2022", "7"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DropBoilerplateRows() mismatch (-want +got):\n%s", diff)
	}
	if got := DropBoilerplateRows(rows, nil); len(got) != len(rows) {
		t.Errorf("DropBoilerplateRows(no markers) dropped rows: %d of %d left", len(got), len(rows))
	}
}

func TestDropRepeatedHeaders(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want [][]string
	}{
		{
			name: "repeated after page break",
			rows: [][]string{{"Name", "Value"}, {"a", "b"}, {"Name", "Value"}, {"c", "d"}},
			want: [][]string{{"Name", "Value"}, {"a", "b"}, {"c", "d"}},
		},
		{
			name: "numeric first row is data",
			rows: [][]string{{"2020", "1"}, {"2020", "1"}},
			want: [][]string{{"2020", "1"}, {"2020", "1"}},
		},
		{
			name: "partial match kept",
			rows: [][]string{{"Name", "Value"}, {"Name", "Other"}},
			want: [][]string{{"Name", "Value"}, {"Name", "Other"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, DropRepeatedHeaders(tt.rows)); diff != "" {
				t.Errorf("DropRepeatedHeaders() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeRepeatedHeadersConfigurable(t *testing.T) {
	rows := [][]string{{"Name", "Value"}, {"a", "b"}, {"Name", "Value"}}

	on := NewNormalizer(DefaultPipelineConfig()).Normalize(models.RawTable{Rows: rows}, models.Provenance{})
	if on == nil || len(on.Rows) != 2 {
		t.Fatalf("with header dedupe: got %+v, want 2 rows", on)
	}

	cfg := DefaultPipelineConfig()
	cfg.DropRepeatedHeaders = false
	off := NewNormalizer(cfg).Normalize(models.RawTable{Rows: rows}, models.Provenance{})
	if off == nil || len(off.Rows) != 3 {
		t.Fatalf("without header dedupe: got %+v, want 3 rows", off)
	}
}

func TestRelabel(t *testing.T) {
	got := Relabel([][]string{{"a", "b", "c"}}, "Column_")
	want := []string{"Column_1", "Column_2", "Column_3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Relabel() mismatch (-want +got):\n%s", diff)
	}
	if got := Relabel(nil, "Column_"); got != nil {
		t.Errorf("Relabel(nil) = %v, want nil", got)
	}
}
