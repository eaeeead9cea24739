package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Lllllllleong/tableflow/internal/gcp"
	"gopkg.in/yaml.v3"
)

// PipelineConfig holds every tunable of the extraction pipeline. It is passed
// explicitly to constructors so one process can run several configurations.
type PipelineConfig struct {
	// SamplePages is how many leading pages the classifier probes for text.
	SamplePages int `yaml:"sample_pages"`
	// MaxPages caps the pages handed to the structured extractor.
	MaxPages int `yaml:"max_pages"`
	// OCRMaxPages caps the pages rasterized for OCR.
	OCRMaxPages int `yaml:"ocr_max_pages"`

	MinStructuredRows int `yaml:"min_structured_rows"`
	MinOCRTokens      int `yaml:"min_ocr_tokens"`
	MinOCRLines       int `yaml:"min_ocr_lines"`
	MinNormalizedRows int `yaml:"min_normalized_rows"`

	BoilerplateMarkers  []string `yaml:"boilerplate_markers"`
	DropRepeatedHeaders bool     `yaml:"drop_repeated_headers"`
	ColumnPrefix        string   `yaml:"column_prefix"`

	Concurrency  int      `yaml:"concurrency"`
	OCRLanguages []string `yaml:"ocr_languages"`
	// OCRMinWidth is the pixel width scans are upscaled to before recognition.
	OCRMinWidth int `yaml:"ocr_min_width"`
}

// DefaultPipelineConfig returns the defaults used when nothing is configured.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SamplePages:         1,
		MaxPages:            15,
		OCRMaxPages:         5,
		MinStructuredRows:   2,
		MinOCRTokens:        2,
		MinOCRLines:         5,
		MinNormalizedRows:   1,
		BoilerplateMarkers:  []string{"source"},
		DropRepeatedHeaders: true,
		ColumnPrefix:        "Column_",
		Concurrency:         4,
		OCRLanguages:        []string{"eng"},
		OCRMinWidth:         1600,
	}
}

// LoadPipelineConfig layers defaults, an optional YAML file and TABLEFLOW_*
// environment overrides, then validates the result.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *PipelineConfig) applyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"TABLEFLOW_SAMPLE_PAGES", &c.SamplePages},
		{"TABLEFLOW_MAX_PAGES", &c.MaxPages},
		{"TABLEFLOW_OCR_MAX_PAGES", &c.OCRMaxPages},
		{"TABLEFLOW_MIN_STRUCTURED_ROWS", &c.MinStructuredRows},
		{"TABLEFLOW_MIN_OCR_TOKENS", &c.MinOCRTokens},
		{"TABLEFLOW_MIN_OCR_LINES", &c.MinOCRLines},
		{"TABLEFLOW_MIN_NORMALIZED_ROWS", &c.MinNormalizedRows},
		{"TABLEFLOW_CONCURRENCY", &c.Concurrency},
		{"TABLEFLOW_OCR_MIN_WIDTH", &c.OCRMinWidth},
	}
	for _, v := range ints {
		raw := gcp.GetEnv(v.key, "")
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", v.key, raw)
		}
		*v.dst = n
	}

	if raw := gcp.GetEnv("TABLEFLOW_BOILERPLATE_MARKERS", ""); raw != "" {
		c.BoilerplateMarkers = splitList(raw)
	}
	if raw := gcp.GetEnv("TABLEFLOW_OCR_LANGUAGES", ""); raw != "" {
		c.OCRLanguages = splitList(raw)
	}
	if raw := gcp.GetEnv("TABLEFLOW_DROP_REPEATED_HEADERS", ""); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("TABLEFLOW_DROP_REPEATED_HEADERS must be a boolean, got %q", raw)
		}
		c.DropRepeatedHeaders = b
	}
	return nil
}

// Validate rejects limits that would stall or trivially empty the pipeline.
func (c PipelineConfig) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"sample_pages", c.SamplePages},
		{"max_pages", c.MaxPages},
		{"ocr_max_pages", c.OCRMaxPages},
		{"min_structured_rows", c.MinStructuredRows},
		{"min_ocr_tokens", c.MinOCRTokens},
		{"min_ocr_lines", c.MinOCRLines},
		{"min_normalized_rows", c.MinNormalizedRows},
		{"concurrency", c.Concurrency},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("invalid pipeline config: %s must be >= 1, got %d", p.name, p.value)
		}
	}
	if strings.TrimSpace(c.ColumnPrefix) == "" {
		return fmt.Errorf("invalid pipeline config: column_prefix must not be empty")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
