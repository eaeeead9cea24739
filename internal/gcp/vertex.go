package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/tableflow/internal/models"
)

// --- Page Transcription Model Prompts ---
const TranscriberSystemPrompt = "You are an OCR engine for scanned statistical reports. You transcribe page images to plain text and never summarize, translate or comment."
const TranscriberUserPrompt = `Transcribe every table on this page image.

Follow these rules precisely:
1.  Output one table row per line, top to bottom.
2.  Separate cells within a row with a single space. Write multi-word cells with their words joined by hyphens, so each cell is one token.
3.  Keep numbers exactly as printed, including thousands separators and decimal points.
4.  Skip page headers, footers, page numbers and logos.
5.  If the page has no table, transcribe its text lines as they appear.

Return ONLY the transcribed text. Do not use Markdown, code fences or any preamble.`

// refusalPhrases mark a response where the model declined the task.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// VertexClient holds the pre-configured generative models of the pipeline.
type VertexClient struct {
	TranscriberModel *genai.GenerativeModel
	baseClient       *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	transcriberModel := baseClient.GenerativeModel(GetEnv("VERTEX_OCR_MODEL", "gemini-1.5-pro"))
	transcriberModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TranscriberSystemPrompt)},
	}
	transcriberModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		TranscriberModel: transcriberModel,
		baseClient:       baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// VertexRecognizer transcribes page images with Gemini. It satisfies the
// pipeline's Recognizer interface as an alternative to Tesseract.
type VertexRecognizer struct {
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// NewVertexRecognizer uses the client's transcription model.
func NewVertexRecognizer(client *VertexClient, logger *slog.Logger) *VertexRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &VertexRecognizer{model: client.TranscriberModel, logger: logger}
}

// Recognize sends one page image to the model and returns its transcription.
// A refusal fails the page.
func (r *VertexRecognizer) Recognize(ctx context.Context, img models.PageImage) (string, error) {
	logCtx := r.logger.With("page", img.Page)

	resp, err := r.model.GenerateContent(ctx, genai.ImageData(imageFormat(img.Format), img.Data), genai.Text(TranscriberUserPrompt))
	if err != nil {
		logCtx.Error("Failed calling Vertex AI.", "error", err)
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text, parts := responseText(resp)
	if parts > 1 {
		logCtx.Warn("Gemini response contained several text parts; they have been concatenated.", "textParts", parts)
	}
	if isRefusal(text) {
		return "", fmt.Errorf("gemini response indicates refusal for page %d", img.Page)
	}
	if text == "" {
		logCtx.Warn("No text extracted from response. Treating as empty page.")
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate and strips
// a surrounding code fence.
func responseText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0
	}

	var b strings.Builder
	parts := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			parts++
		}
	}

	text := strings.TrimSpace(b.String())
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), parts
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// imageFormat maps a file type to the subtype genai.ImageData expects.
func imageFormat(format string) string {
	switch f := strings.ToLower(format); f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	case "":
		return "png"
	default:
		return f
	}
}
