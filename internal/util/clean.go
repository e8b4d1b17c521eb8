package util

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// charReplacementMap normalizes the typographic characters OCR and
// vision models like to emit into their plain ASCII equivalents, so
// downstream string matching on transcriptions stays predictable.
var charReplacementMap = map[string]string{
	"\u2018": "'", "\u2019": "'", "\u201C": "\"", "\u201D": "\"",
	"\u2013": "-", "\u2014": "--", "\u2026": "...", "\u00a0": " ",
	"\u0091": "'", "\u0092": "'", "\u0093": "\"", "\u0094": "\"",
	"\u0096": "-", "\u0097": "--",
}

// CleanTranscription strips a UTF-8 BOM, repairs invalid byte sequences
// and normalizes typographic punctuation in a model transcription.
func CleanTranscription(text string) string {
	b := bytes.TrimPrefix([]byte(text), utf8BOM)
	if !utf8.Valid(b) {
		b = bytes.ToValidUTF8(b, []byte(string(utf8.RuneError)))
	}
	s := string(b)
	for bad, good := range charReplacementMap {
		s = strings.ReplaceAll(s, bad, good)
	}
	return strings.TrimSpace(s)
}
