package openaistage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxreader/internal/models"
)

func TestStripFences(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", `Here is the result: {"a":1}`, `{"a":1}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripFences(tc.in))
		})
	}
}

func TestDecodeResponse_RoundTrip(t *testing.T) {
	var out struct {
		Score string `json:"score"`
	}
	require.NoError(t, decodeResponse("```json\n{\"score\":\"good\"}\n```", &out))
	assert.Equal(t, "good", out.Score)
}

func TestParseScore(t *testing.T) {
	for _, raw := range []string{"poor", "Fair", "GOOD", " excellent "} {
		score, err := parseScore(raw)
		require.NoError(t, err, "score %q should parse", raw)
		assert.NotEmpty(t, score)
	}

	got, err := parseScore("Poor")
	require.NoError(t, err)
	assert.Equal(t, models.QualityPoor, got)

	_, err = parseScore("mediocre")
	assert.Error(t, err)
}
