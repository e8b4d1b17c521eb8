// Package geministage implements the stage adapters on the Google Gemini
// API, mirroring the OpenAI implementation so deployments can choose a
// provider per environment.
package geministage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"

	"rxreader/internal/models"
	"rxreader/internal/stages"
)

// Config holds per-stage default model names.
type Config struct {
	TranscribeModel string
	ExtractModel    string
	JudgeModel      string
	CorrectModel    string
}

// Client implements Transcriber, Extractor, Evaluator and Corrector.
type Client struct {
	genai  *genai.Client
	images stages.ImageSource
	cfg    Config
}

var (
	_ stages.Transcriber = (*Client)(nil)
	_ stages.Extractor   = (*Client)(nil)
	_ stages.Evaluator   = (*Client)(nil)
	_ stages.Corrector   = (*Client)(nil)
)

func New(client *genai.Client, images stages.ImageSource, cfg Config) *Client {
	return &Client{genai: client, images: images, cfg: cfg}
}

const transcribePrompt = `Transcribe every piece of text visible in this document image.
Preserve line breaks. Output only the transcription, nothing else.`

const extractPrompt = `You are reading a scanned prescription. Extract its contents as JSON
conforming to the provided JSON schema. Respond with a single JSON object:
{"isPrescription": <bool>, "isHandwritten": <bool>, "extraction": <object matching the schema>}
If the image is not a prescription, set isPrescription to false and extraction to an empty object.`

const evaluatePrompt = `You are judging the quality of data extracted from a scanned prescription.
Compare the extraction against the image and the schema. Respond with a single JSON object:
{"score": "poor" | "fair" | "good" | "excellent", "feedback": "<what to fix>"}`

const correctPrompt = `You previously extracted data from this scanned prescription and a reviewer
left feedback. Produce a corrected extraction conforming to the schema. Respond with a single
JSON object: {"extraction": <object matching the schema>}`

func (c *Client) Transcribe(ctx context.Context, in stages.TranscribeInput) (*stages.TranscribeResult, error) {
	text, usage, err := c.generate(ctx, c.cfg.TranscribeModel, nil, in.Image, transcribePrompt)
	if err != nil {
		return nil, err
	}
	return &stages.TranscribeResult{Transcription: text, Usage: usage}, nil
}

func (c *Client) Extract(ctx context.Context, in stages.ExtractInput) (*stages.ExtractResult, error) {
	model := in.Params.Model
	if model == "" {
		model = c.cfg.ExtractModel
	}
	prompt := buildPrompt(extractPrompt, "## JSON Schema\n\n"+in.Schema, in.Transcription, in.MedicationContext)
	text, usage, err := c.generate(ctx, model, in.Params.Temperature, in.Image, prompt)
	if err != nil {
		return nil, err
	}
	var env struct {
		IsPrescription bool            `json:"isPrescription"`
		IsHandwritten  bool            `json:"isHandwritten"`
		Extraction     json.RawMessage `json:"extraction"`
	}
	if err := decode(text, &env); err != nil {
		return nil, err
	}
	return &stages.ExtractResult{
		IsPrescription: env.IsPrescription,
		IsHandwritten:  env.IsHandwritten,
		Data:           env.Extraction,
		Usage:          usage,
	}, nil
}

func (c *Client) Evaluate(ctx context.Context, in stages.EvaluateInput) (*stages.EvaluateResult, error) {
	model := in.Params.Model
	if model == "" {
		model = c.cfg.JudgeModel
	}
	prompt := buildPrompt(evaluatePrompt,
		"## JSON Schema\n\n"+in.Schema+"\n\n## Extraction Under Review\n\n"+string(in.Extraction),
		in.Transcription, in.MedicationContext)
	text, usage, err := c.generate(ctx, model, in.Params.Temperature, in.Image, prompt)
	if err != nil {
		return nil, err
	}
	var env struct {
		Score    string `json:"score"`
		Feedback string `json:"feedback"`
	}
	if err := decode(text, &env); err != nil {
		return nil, err
	}
	score := models.ExtractionQuality(strings.ToLower(strings.TrimSpace(env.Score)))
	switch score {
	case models.QualityPoor, models.QualityFair, models.QualityGood, models.QualityExcellent:
	default:
		return nil, stages.NewError(stages.KindTransient, fmt.Errorf("model returned unknown score %q", env.Score))
	}
	return &stages.EvaluateResult{Score: score, Feedback: env.Feedback, Usage: usage}, nil
}

func (c *Client) Correct(ctx context.Context, in stages.CorrectInput) (*stages.CorrectResult, error) {
	model := in.Params.Model
	if model == "" {
		model = c.cfg.CorrectModel
	}
	prompt := buildPrompt(correctPrompt,
		"## JSON Schema\n\n"+in.Schema+"\n\n## Previous Extraction\n\n"+string(in.Extraction)+
			"\n\n## Reviewer Feedback\n\n"+in.Feedback,
		in.Transcription, in.MedicationContext)
	text, usage, err := c.generate(ctx, model, in.Params.Temperature, in.Image, prompt)
	if err != nil {
		return nil, err
	}
	var env struct {
		Extraction json.RawMessage `json:"extraction"`
	}
	if err := decode(text, &env); err != nil {
		return nil, err
	}
	return &stages.CorrectResult{Data: env.Extraction, Usage: usage}, nil
}

func (c *Client) generate(ctx context.Context, modelName string, temperature *float32, imageRef, prompt string) (string, *models.ModelUsage, error) {
	data, contentType, err := c.images.Fetch(ctx, imageRef)
	if err != nil {
		return "", nil, stages.NewError(stages.KindTransient, fmt.Errorf("fetch image %s: %w", imageRef, err))
	}
	format := strings.TrimPrefix(contentType, "image/")

	model := c.genai.GenerativeModel(modelName)
	if temperature != nil {
		model.SetTemperature(*temperature)
	}

	resp, err := model.GenerateContent(ctx, genai.ImageData(format, data), genai.Text(prompt))
	if err != nil {
		return "", nil, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return "", nil, stages.NewError(stages.KindTransient, fmt.Errorf("model returned no text content"))
	}
	var usage *models.ModelUsage
	if resp.UsageMetadata != nil {
		usage = &models.ModelUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			CachedTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	log.WithFields(log.Fields{"model": modelName}).Debug("model invocation complete")
	return text, usage, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return sb.String()
}

func buildPrompt(system, body, transcription, medContext string) string {
	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\n")
	sb.WriteString(body)
	if transcription != "" {
		sb.WriteString("\n\n## OCR Extracted Text\n\n")
		sb.WriteString(transcription)
	}
	if medContext != "" {
		sb.WriteString("\n\n## Known Medication Names\n\n")
		sb.WriteString(medContext)
	}
	return sb.String()
}

func decode(text string, out any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return stages.NewError(stages.KindTransient, fmt.Errorf("malformed model response: %w", err))
	}
	return nil
}

// classify maps a Google API failure onto the stage error taxonomy.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return stages.NewError(stages.KindRateLimited, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return stages.NewError(stages.KindTransient, err)
		default:
			return stages.NewError(stages.KindUnrecoverable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stages.NewError(stages.KindTransient, err)
	}
	return stages.NewError(stages.KindUnrecoverable, err)
}
