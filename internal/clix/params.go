package clix

import (
	"github.com/spf13/pflag"

	"rxreader/internal/jobs"
)

// RegisterSubmitFlags declares the submission flags shared by commands
// that create jobs.
func RegisterSubmitFlags(flags *pflag.FlagSet) {
	flags.String("schema", "", "JSON schema the extraction must conform to (required)")
	flags.Float32("temperature", 0, "model temperature override")
	flags.String("fast-model", "", "model for the extract stage")
	flags.String("judge-model", "", "model for the evaluation stage")
	flags.String("powerful-model", "", "model for the correction stage")
	flags.Bool("transcribe", true, "run the OCR transcription stage first")
	flags.Int("max-corrections", 0, "upper bound on correction attempts")
}

// ParseSubmitRequest builds a submission from flags. Flags the user did
// not set stay nil so deployment defaults apply.
func ParseSubmitRequest(flags *pflag.FlagSet, image string) (jobs.SubmitRequest, error) {
	req := jobs.SubmitRequest{Image: image}
	req.Schema, _ = flags.GetString("schema")
	req.FastModel, _ = flags.GetString("fast-model")
	req.JudgeModel, _ = flags.GetString("judge-model")
	req.PowerfulModel, _ = flags.GetString("powerful-model")

	if flags.Changed("temperature") {
		t, err := flags.GetFloat32("temperature")
		if err != nil {
			return req, err
		}
		req.Temperature = &t
	}
	if flags.Changed("transcribe") {
		b, err := flags.GetBool("transcribe")
		if err != nil {
			return req, err
		}
		req.UseTranscriber = &b
	}
	if flags.Changed("max-corrections") {
		n, err := flags.GetInt("max-corrections")
		if err != nil {
			return req, err
		}
		req.MaxCorrections = &n
	}
	return req, nil
}
