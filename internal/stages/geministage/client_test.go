package geministage

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"rxreader/internal/stages"
)

func TestDecode(t *testing.T) {
	var out struct {
		Score string `json:"score"`
	}
	require.NoError(t, decode("```json\n{\"score\":\"good\"}\n```", &out))
	assert.Equal(t, "good", out.Score)

	err := decode("not json at all", &out)
	require.Error(t, err)
	assert.Equal(t, stages.KindTransient, stages.KindOf(err))
}

func TestBuildPrompt(t *testing.T) {
	got := buildPrompt("SYSTEM", "BODY", "ocr text", "amoxicillin")
	assert.Contains(t, got, "SYSTEM")
	assert.Contains(t, got, "BODY")
	assert.Contains(t, got, "## OCR Extracted Text")
	assert.Contains(t, got, "## Known Medication Names")

	bare := buildPrompt("SYSTEM", "BODY", "", "")
	assert.NotContains(t, bare, "## OCR Extracted Text")
	assert.NotContains(t, bare, "## Known Medication Names")
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want stages.ErrorKind
	}{
		{"429", &googleapi.Error{Code: http.StatusTooManyRequests}, stages.KindRateLimited},
		{"500", &googleapi.Error{Code: http.StatusInternalServerError}, stages.KindTransient},
		{"403", &googleapi.Error{Code: http.StatusForbidden}, stages.KindUnrecoverable},
		{"deadline", context.DeadlineExceeded, stages.KindTransient},
		{"plain", errors.New("x"), stages.KindUnrecoverable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stages.KindOf(classify(tc.err)))
		})
	}
}
