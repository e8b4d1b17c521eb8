package openaistage

import (
	"encoding/json"
	"fmt"
	"strings"

	"rxreader/internal/models"
	"rxreader/internal/stages"
)

// decodeResponse unmarshals a model reply into out, tolerating the code
// fences models like to wrap JSON in. A reply that still fails to parse
// is a model fault and classified transient so the retry policy can ask
// again.
func decodeResponse(text string, out any) error {
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return stages.NewError(stages.KindTransient, fmt.Errorf("malformed model response: %w", err))
	}
	return nil
}

// stripFences removes a leading ```json (or bare ```) fence and the
// matching trailing fence, plus any prose before the first brace.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	// Some models prepend prose; take from the first opening brace.
	if idx := strings.Index(s, "{"); idx > 0 {
		s = s[idx:]
	}
	return s
}

func parseScore(raw string) (models.ExtractionQuality, error) {
	score := models.ExtractionQuality(strings.ToLower(strings.TrimSpace(raw)))
	switch score {
	case models.QualityPoor, models.QualityFair, models.QualityGood, models.QualityExcellent:
		return score, nil
	}
	return "", stages.NewError(stages.KindTransient, fmt.Errorf("model returned unknown score %q", raw))
}
