package services

import (
	"context"
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		prober      *fakeProber
		samplePages int
		want        models.Verdict
	}{
		{
			name:        "text layer",
			prober:      &fakeProber{pages: map[string][]string{"doc.pdf": {"Annual figures 2020"}}},
			samplePages: 1,
			want:        models.Verdict{Strategy: models.StrategyStructured, Confidence: 1, SampledPages: 1},
		},
		{
			name:        "partial text layer",
			prober:      &fakeProber{pages: map[string][]string{"doc.pdf": {"  \n", "Table 1"}}},
			samplePages: 2,
			want:        models.Verdict{Strategy: models.StrategyStructured, Confidence: 0.5, SampledPages: 2},
		},
		{
			name:        "scanned",
			prober:      &fakeProber{pages: map[string][]string{"doc.pdf": {" \t\n"}}},
			samplePages: 1,
			want:        models.Verdict{Strategy: models.StrategyOCR, Confidence: 1, SampledPages: 1},
		},
		{
			name:        "text layer error",
			prober:      &fakeProber{err: errBoom},
			samplePages: 1,
			want:        models.Verdict{Strategy: models.StrategyOCR, Indeterminate: true},
		},
		{
			name:        "text layer panic",
			prober:      &fakeProber{panic: true},
			samplePages: 1,
			want:        models.Verdict{Strategy: models.StrategyOCR, Indeterminate: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			cfg.SamplePages = tt.samplePages
			c := NewClassifier(tt.prober, cfg, discardLogger())

			doc := models.NewDocument("doc.pdf", "/tmp/doc.pdf", 0)
			got := c.Classify(context.Background(), doc)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifySamplesOnlyConfiguredPages(t *testing.T) {
	prober := &fakeProber{pages: map[string][]string{"doc.pdf": {"", "page two has text"}}}
	c := NewClassifier(prober, DefaultPipelineConfig(), discardLogger())

	got := c.Classify(context.Background(), models.NewDocument("doc.pdf", "/tmp/doc.pdf", 0))
	if got.Strategy != models.StrategyOCR {
		t.Errorf("Classify() strategy = %s, want %s when only page one is sampled", got.Strategy, models.StrategyOCR)
	}
}

func TestClassifyRecordsPageCount(t *testing.T) {
	prober := &fakeProber{pages: map[string][]string{"doc.pdf": {"", "page two has text", "three"}}}
	c := NewClassifier(prober, DefaultPipelineConfig(), discardLogger())

	doc := models.NewDocument("doc.pdf", "/tmp/doc.pdf", 0)
	c.Classify(context.Background(), doc)
	if doc.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3 (all pages, not just the sampled one)", doc.PageCount)
	}

	failing := models.NewDocument("doc.pdf", "/tmp/doc.pdf", 0)
	NewClassifier(&fakeProber{panic: true}, DefaultPipelineConfig(), discardLogger()).Classify(context.Background(), failing)
	if failing.PageCount != 0 {
		t.Errorf("PageCount = %d after a failing count, want 0", failing.PageCount)
	}
}
