package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// cleanMarkdownWrapper strips a fenced code block (``` or ```json) from the
// model's answer. Models wrap their JSON in fences despite instructions not
// to, so every provider response passes through here before unmarshaling.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		return strings.TrimSpace(content)
	}

	// Prose around a bare object: keep the outermost braces.
	if start := strings.Index(content, "{"); start > 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}

	return content
}

// parseExtraction decodes the model's JSON answer into a Classification.
// Failures are wrapped with ErrMalformedOutput so callers can distinguish
// garbage output from transport errors.
func parseExtraction(content string) (model.Classification, error) {
	var raw struct {
		CompanyName    *string     `json:"company_name"`
		JobTitle       *string     `json:"job_title"`
		InterviewStage *string     `json:"interview_stage"`
		Confidence     json.Number `json:"confidence"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return model.Classification{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	confidence := 0
	if raw.Confidence != "" {
		f, err := raw.Confidence.Float64()
		if err != nil {
			return model.Classification{}, fmt.Errorf("%w: confidence %q", ErrMalformedOutput, raw.Confidence)
		}
		confidence = int(f)
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	return model.Classification{
		Company:    cleanValue(raw.CompanyName),
		Title:      cleanValue(raw.JobTitle),
		Tag:        model.StageTag(strings.ToLower(cleanValue(raw.InterviewStage))),
		Confidence: confidence,
	}, nil
}

// cleanValue normalizes the model's various spellings of "nothing".
func cleanValue(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}
