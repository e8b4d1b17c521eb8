package openaistage

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"rxreader/internal/stages"
)

// classify maps an OpenAI API failure onto the stage error taxonomy:
// 429 is rate limiting, 5xx and transport faults are transient, the
// rest (bad request, auth) is unrecoverable.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return stages.NewError(stages.KindRateLimited, err)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return stages.NewError(stages.KindTransient, err)
		default:
			return stages.NewError(stages.KindUnrecoverable, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= http.StatusInternalServerError || reqErr.HTTPStatusCode == 0 {
			return stages.NewError(stages.KindTransient, err)
		}
		return stages.NewError(stages.KindUnrecoverable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		// An externally observed timeout is transient; the retry budget
		// turns it terminal if it persists.
		return stages.NewError(stages.KindTransient, err)
	}

	return stages.NewError(stages.KindUnrecoverable, err)
}
