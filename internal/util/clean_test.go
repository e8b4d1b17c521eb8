package util

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanTranscription(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "Amoxicillin 500mg", "Amoxicillin 500mg"},
		{"smart quotes", "take \u201Cwith food\u201D", `take "with food"`},
		{"curly apostrophe", "patient\u2019s dose", "patient's dose"},
		{"en dash", "2\u20133 times daily", "2-3 times daily"},
		{"bom and whitespace", "\uFEFF  Rx\n", "Rx"},
		{"nbsp", "500\u00a0mg", "500 mg"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanTranscription(tc.in))
		})
	}
}

func TestCleanTranscription_RepairsInvalidUTF8(t *testing.T) {
	got := CleanTranscription("Rx\xff\xfe500mg")
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "Rx")
	assert.Contains(t, got, "500mg")
}
