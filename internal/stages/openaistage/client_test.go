package openaistage

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxreader/internal/models"
	"rxreader/internal/stages"
)

// --- Mock OpenAI client ---

type mockOpenAIClient struct {
	mockResponse openai.ChatCompletionResponse
	mockError    error
	lastRequest  openai.ChatCompletionRequest
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastRequest = req
	if m.mockError != nil {
		return openai.ChatCompletionResponse{}, m.mockError
	}
	return m.mockResponse, nil
}

// --- Mock image source ---

type mockImageSource struct {
	data        []byte
	contentType string
	err         error
}

func (m *mockImageSource) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.data, m.contentType, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
		Usage: openai.Usage{
			PromptTokens:     120,
			CompletionTokens: 30,
			PromptTokensDetails: &openai.PromptTokensDetails{
				CachedTokens: 40,
			},
		},
	}
}

func newTestClient(api ChatCompletionCreator) *Client {
	images := &mockImageSource{data: []byte("fake-jpeg-bytes"), contentType: "image/jpeg"}
	return New(api, images, Config{
		TranscribeModel: "gpt-transcribe",
		ExtractModel:    "gpt-extract",
		JudgeModel:      "gpt-judge",
		CorrectModel:    "gpt-correct",
	})
}

func TestExtract_ParsesEnvelope(t *testing.T) {
	// 1. Configure a well-formed extraction envelope
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"isPrescription": true, "isHandwritten": true, "extraction": {"medication": "amoxicillin"}}`),
	}
	client := newTestClient(mockClient)

	// 2. Run the extract stage
	res, err := client.Extract(context.Background(), stages.ExtractInput{
		Image:  "scans/rx.jpg",
		Schema: `{"type":"object"}`,
	})

	// 3. Envelope fields and usage land on the result
	require.NoError(t, err)
	assert.True(t, res.IsPrescription)
	assert.True(t, res.IsHandwritten)
	assert.JSONEq(t, `{"medication":"amoxicillin"}`, string(res.Data))
	require.NotNil(t, res.Usage)
	assert.Equal(t, 120, res.Usage.InputTokens)
	assert.Equal(t, 30, res.Usage.OutputTokens)
	assert.Equal(t, 40, res.Usage.CachedTokens)
}

func TestExtract_RequestShape(t *testing.T) {
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"isPrescription": true, "extraction": {}}`),
	}
	client := newTestClient(mockClient)

	temp := float32(0.2)
	_, err := client.Extract(context.Background(), stages.ExtractInput{
		Image:         "scans/rx.jpg",
		Schema:        `{"type":"object"}`,
		Transcription: "Rx text",
		Params:        stages.ModelParams{Model: "gpt-override", Temperature: &temp},
	})
	require.NoError(t, err)

	req := mockClient.lastRequest
	assert.Equal(t, "gpt-override", req.Model, "submission model overrides the configured default")
	assert.Equal(t, float32(0.2), req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)

	// The user message carries the image as a base64 data URL plus the
	// schema and transcription as text parts
	parts := req.Messages[1].MultiContent
	require.NotEmpty(t, parts)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, parts[0].Type)
	wantPrefix := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake-jpeg-bytes"))
	assert.Equal(t, wantPrefix, parts[0].ImageURL.URL)

	var sawSchema, sawTranscription bool
	for _, p := range parts[1:] {
		if strings.Contains(p.Text, `{"type":"object"}`) {
			sawSchema = true
		}
		if strings.Contains(p.Text, "Rx text") {
			sawTranscription = true
		}
	}
	assert.True(t, sawSchema, "schema part missing")
	assert.True(t, sawTranscription, "transcription part missing")
}

func TestExtract_NonPrescription(t *testing.T) {
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"isPrescription": false, "isHandwritten": false, "extraction": {}}`),
	}
	client := newTestClient(mockClient)

	res, err := client.Extract(context.Background(), stages.ExtractInput{Image: "scans/cat.jpg", Schema: "{}"})
	require.NoError(t, err)
	assert.False(t, res.IsPrescription)
}

func TestExtract_FencedResponse(t *testing.T) {
	fenced := "```json\n{\"isPrescription\": true, \"extraction\": {\"medication\": \"x\"}}\n```"
	mockClient := &mockOpenAIClient{mockResponse: textResponse(fenced)}
	client := newTestClient(mockClient)

	res, err := client.Extract(context.Background(), stages.ExtractInput{Image: "i", Schema: "{}"})
	require.NoError(t, err)
	assert.True(t, res.IsPrescription)
}

func TestExtract_MalformedResponseIsTransient(t *testing.T) {
	mockClient := &mockOpenAIClient{mockResponse: textResponse("sorry, I cannot do that")}
	client := newTestClient(mockClient)

	_, err := client.Extract(context.Background(), stages.ExtractInput{Image: "i", Schema: "{}"})
	require.Error(t, err)
	assert.Equal(t, stages.KindTransient, stages.KindOf(err))
}

func TestExtract_EmptyChoiceIsTransient(t *testing.T) {
	mockClient := &mockOpenAIClient{mockResponse: openai.ChatCompletionResponse{}}
	client := newTestClient(mockClient)

	_, err := client.Extract(context.Background(), stages.ExtractInput{Image: "i", Schema: "{}"})
	require.Error(t, err)
	assert.Equal(t, stages.KindTransient, stages.KindOf(err))
}

func TestExtract_ImageFetchFailureIsTransient(t *testing.T) {
	client := New(&mockOpenAIClient{}, &mockImageSource{err: assert.AnError}, Config{})

	_, err := client.Extract(context.Background(), stages.ExtractInput{Image: "gone.jpg", Schema: "{}"})
	require.Error(t, err)
	assert.Equal(t, stages.KindTransient, stages.KindOf(err))
}

func TestTranscribe(t *testing.T) {
	mockClient := &mockOpenAIClient{mockResponse: textResponse("Dr. Smith\nAmoxicillin 500mg")}
	client := newTestClient(mockClient)

	res, err := client.Transcribe(context.Background(), stages.TranscribeInput{Image: "scans/rx.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Smith\nAmoxicillin 500mg", res.Transcription)
	assert.Equal(t, "gpt-transcribe", mockClient.lastRequest.Model)
}

func TestEvaluate_ParsesScore(t *testing.T) {
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"score": "Fair", "feedback": "dosage missing"}`),
	}
	client := newTestClient(mockClient)

	res, err := client.Evaluate(context.Background(), stages.EvaluateInput{
		Image:      "i",
		Schema:     "{}",
		Extraction: []byte(`{"medication":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.QualityFair, res.Score, "score comparison is case-insensitive")
	assert.Equal(t, "dosage missing", res.Feedback)
	assert.Equal(t, "gpt-judge", mockClient.lastRequest.Model)
}

func TestEvaluate_UnknownScoreIsTransient(t *testing.T) {
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"score": "amazing", "feedback": ""}`),
	}
	client := newTestClient(mockClient)

	_, err := client.Evaluate(context.Background(), stages.EvaluateInput{Image: "i", Schema: "{}"})
	require.Error(t, err)
	assert.Equal(t, stages.KindTransient, stages.KindOf(err))
	assert.Contains(t, err.Error(), "amazing")
}

func TestCorrect_SendsFeedback(t *testing.T) {
	mockClient := &mockOpenAIClient{
		mockResponse: textResponse(`{"extraction": {"medication": "amoxicillin", "dosage": "500mg"}}`),
	}
	client := newTestClient(mockClient)

	res, err := client.Correct(context.Background(), stages.CorrectInput{
		Image:      "i",
		Schema:     "{}",
		Extraction: []byte(`{"medication":"amoxicillin"}`),
		Feedback:   "dosage missing",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"medication":"amoxicillin","dosage":"500mg"}`, string(res.Data))
	assert.Equal(t, "gpt-correct", mockClient.lastRequest.Model)

	var sawFeedback bool
	for _, p := range mockClient.lastRequest.Messages[1].MultiContent {
		if strings.Contains(p.Text, "dosage missing") {
			sawFeedback = true
		}
	}
	assert.True(t, sawFeedback, "reviewer feedback must reach the correction prompt")
}
