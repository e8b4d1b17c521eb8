// Package openaistage implements the four stage adapters on the OpenAI
// chat completions API with vision input.
package openaistage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"rxreader/internal/models"
	"rxreader/internal/stages"
)

// ChatCompletionCreator is the minimal OpenAI surface the adapters need,
// kept as an interface so tests can mock the API.
type ChatCompletionCreator interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the per-stage default models used when the submission
// does not choose one.
type Config struct {
	TranscribeModel string
	ExtractModel    string
	JudgeModel      string
	CorrectModel    string
}

// Client implements Transcriber, Extractor, Evaluator and Corrector.
type Client struct {
	api    ChatCompletionCreator
	images stages.ImageSource
	cfg    Config
}

var (
	_ stages.Transcriber = (*Client)(nil)
	_ stages.Extractor   = (*Client)(nil)
	_ stages.Evaluator   = (*Client)(nil)
	_ stages.Corrector   = (*Client)(nil)
)

func New(api ChatCompletionCreator, images stages.ImageSource, cfg Config) *Client {
	return &Client{api: api, images: images, cfg: cfg}
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
	resp, err := c.converse(ctx, c.cfg.TranscribeModel, nil, transcribePrompt, in.Image, nil)
	if err != nil {
		return nil, err
	}
	text, usage, err := responseText(resp)
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
	parts := []string{
		"## JSON Schema\n\n" + in.Schema,
	}
	parts = appendContext(parts, in.Transcription, in.MedicationContext)

	resp, err := c.converse(ctx, model, in.Params.Temperature, extractPrompt, in.Image, parts)
	if err != nil {
		return nil, err
	}
	text, usage, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	var env struct {
		IsPrescription bool            `json:"isPrescription"`
		IsHandwritten  bool            `json:"isHandwritten"`
		Extraction     json.RawMessage `json:"extraction"`
	}
	if err := decodeResponse(text, &env); err != nil {
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
	parts := []string{
		"## JSON Schema\n\n" + in.Schema,
		"## Extraction Under Review\n\n" + string(in.Extraction),
	}
	parts = appendContext(parts, in.Transcription, in.MedicationContext)

	resp, err := c.converse(ctx, model, in.Params.Temperature, evaluatePrompt, in.Image, parts)
	if err != nil {
		return nil, err
	}
	text, usage, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	var env struct {
		Score    string `json:"score"`
		Feedback string `json:"feedback"`
	}
	if err := decodeResponse(text, &env); err != nil {
		return nil, err
	}
	score, err := parseScore(env.Score)
	if err != nil {
		return nil, err
	}
	return &stages.EvaluateResult{Score: score, Feedback: env.Feedback, Usage: usage}, nil
}

func (c *Client) Correct(ctx context.Context, in stages.CorrectInput) (*stages.CorrectResult, error) {
	model := in.Params.Model
	if model == "" {
		model = c.cfg.CorrectModel
	}
	parts := []string{
		"## JSON Schema\n\n" + in.Schema,
		"## Previous Extraction\n\n" + string(in.Extraction),
		"## Reviewer Feedback\n\n" + in.Feedback,
	}
	parts = appendContext(parts, in.Transcription, in.MedicationContext)

	resp, err := c.converse(ctx, model, in.Params.Temperature, correctPrompt, in.Image, parts)
	if err != nil {
		return nil, err
	}
	text, usage, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	var env struct {
		Extraction json.RawMessage `json:"extraction"`
	}
	if err := decodeResponse(text, &env); err != nil {
		return nil, err
	}
	return &stages.CorrectResult{Data: env.Extraction, Usage: usage}, nil
}

// converse fetches the image and issues one vision chat completion.
func (c *Client) converse(ctx context.Context, model string, temperature *float32, system, imageRef string, extraParts []string) (openai.ChatCompletionResponse, error) {
	data, contentType, err := c.images.Fetch(ctx, imageRef)
	if err != nil {
		return openai.ChatCompletionResponse{}, stages.NewError(stages.KindTransient, fmt.Errorf("fetch image %s: %w", imageRef, err))
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	content := []openai.ChatMessagePart{
		{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
		},
	}
	for _, p := range extraParts {
		content = append(content, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p})
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, MultiContent: content},
		},
	}
	if temperature != nil {
		req.Temperature = *temperature
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, classify(err)
	}
	log.WithFields(log.Fields{
		"model":             model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("model invocation complete")
	return resp, nil
}

// responseText pulls the first choice's text and the usage accounting.
// An empty response is a model fault worth retrying.
func responseText(resp openai.ChatCompletionResponse) (string, *models.ModelUsage, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", nil, stages.NewError(stages.KindTransient, fmt.Errorf("model returned no text content"))
	}
	usage := &models.ModelUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func appendContext(parts []string, transcription, medContext string) []string {
	if transcription != "" {
		parts = append(parts, "## OCR Extracted Text\n\n"+transcription)
	}
	if medContext != "" {
		parts = append(parts, "## Known Medication Names\n\n"+medContext)
	}
	return parts
}
