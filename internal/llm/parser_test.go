package llm

import (
	"errors"
	"testing"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `{"company_name": "Acme"}`,
			expected: `{"company_name": "Acme"}`,
		},
		{
			name:     "json fenced block",
			input:    "```json\n{\"company_name\": \"Acme\"}\n```",
			expected: `{"company_name": "Acme"}`,
		},
		{
			name:     "plain fenced block",
			input:    "```\n{\"company_name\": \"Acme\"}\n```",
			expected: `{"company_name": "Acme"}`,
		},
		{
			name:     "prose before object",
			input:    "Here is the result:\n{\"company_name\": \"Acme\"}",
			expected: `{"company_name": "Acme"}`,
		},
		{
			name:     "prose before and after",
			input:    "Result:\n{\"company_name\": null}\nEnd of response.",
			expected: `{"company_name": null}`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n {\"company_name\": \"Acme\"} \n ",
			expected: `{"company_name": "Acme"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanMarkdownWrapper(tt.input); got != tt.expected {
				t.Errorf("cleanMarkdownWrapper() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		want          model.Classification
		wantMalformed bool
	}{
		{
			name:  "complete answer",
			input: `{"company_name": "Acme", "job_title": "SWE", "interview_stage": "phone_screen", "confidence": 85}`,
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagPhoneScreen, Confidence: 85},
		},
		{
			name:  "fenced answer",
			input: "```json\n{\"company_name\": \"Acme\", \"job_title\": \"SWE\", \"interview_stage\": \"offer\", \"confidence\": 90}\n```",
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 90},
		},
		{
			name:  "null fields become empty",
			input: `{"company_name": null, "job_title": "null", "interview_stage": null, "confidence": 10}`,
			want:  model.Classification{Confidence: 10},
		},
		{
			name:  "float confidence truncated",
			input: `{"company_name": "Acme", "job_title": "SWE", "interview_stage": "other", "confidence": 72.9}`,
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagOther, Confidence: 72},
		},
		{
			name:  "confidence clamped to 100",
			input: `{"company_name": "Acme", "job_title": "SWE", "interview_stage": "offer", "confidence": 400}`,
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 100},
		},
		{
			name:  "negative confidence clamped to zero",
			input: `{"company_name": "Acme", "job_title": "SWE", "interview_stage": "offer", "confidence": -5}`,
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 0},
		},
		{
			name:  "uppercase stage tag folded",
			input: `{"company_name": "Acme", "job_title": "SWE", "interview_stage": "REJECTED", "confidence": 60}`,
			want:  model.Classification{Company: "Acme", Title: "SWE", Tag: model.TagRejected, Confidence: 60},
		},
		{
			name:          "not JSON at all",
			input:         "I could not find any job application information in this email.",
			wantMalformed: true,
		},
		{
			name:          "truncated JSON",
			input:         `{"company_name": "Acme", "job_`,
			wantMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExtraction(tt.input)
			if tt.wantMalformed {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("expected ErrMalformedOutput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraction() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseExtraction() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
