package model

import "testing"

func TestStageRankOrdering(t *testing.T) {
	if !(StageApplied.Rank() < StageInterview.Rank() &&
		StageInterview.Rank() < StageOffer.Rank() &&
		StageOffer.Rank() < StageRejected.Rank()) {
		t.Fatalf("stage ranks out of order: %d %d %d %d",
			StageApplied.Rank(), StageInterview.Rank(), StageOffer.Rank(), StageRejected.Rank())
	}
}

func TestShouldAdvance(t *testing.T) {
	tests := []struct {
		name string
		cur  Stage
		next Stage
		want bool
	}{
		{"forward applied to interview", StageApplied, StageInterview, true},
		{"forward interview to offer", StageInterview, StageOffer, true},
		{"no demotion interview to applied", StageInterview, StageApplied, false},
		{"no demotion offer to interview", StageOffer, StageInterview, false},
		{"same stage is no-op", StageInterview, StageInterview, false},
		{"rejected overrides applied", StageApplied, StageRejected, true},
		{"rejected overrides offer", StageOffer, StageRejected, true},
		{"rejected is terminal", StageRejected, StageOffer, false},
		{"rejected stays rejected", StageRejected, StageRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAdvance(tt.cur, tt.next); got != tt.want {
				t.Errorf("ShouldAdvance(%s, %s) = %v, want %v", tt.cur, tt.next, got, tt.want)
			}
		})
	}
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		input   string
		want    Stage
		wantErr bool
	}{
		{"Applied", StageApplied, false},
		{"interview", StageInterview, false},
		{"OFFER", StageOffer, false},
		{"Rejected", StageRejected, false},
		{"ghosted", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStage(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStage(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestApplicationKeyCaseInsensitive(t *testing.T) {
	a := ApplicationKey("Acme", "SWE")
	b := ApplicationKey("acme", "swe")
	c := ApplicationKey(" ACME ", " Swe ")
	if a != b || b != c {
		t.Errorf("keys differ: %q %q %q", a, b, c)
	}
	if a == ApplicationKey("Acme", "SRE") {
		t.Error("distinct positions collapsed to one key")
	}
}

func TestStageTagCanonicalIsTotal(t *testing.T) {
	tests := []struct {
		tag  StageTag
		want Stage
	}{
		{TagApplicationReceived, StageApplied},
		{TagPhoneScreen, StageInterview},
		{TagTechnicalInterview, StageInterview},
		{TagBehavioralInterview, StageInterview},
		{TagFinalInterview, StageInterview},
		{TagOffer, StageOffer},
		{TagRejected, StageRejected},
		{TagOther, StageApplied},
		{StageTag(""), StageApplied},
		{StageTag("garbage_tag"), StageApplied},
	}

	for _, tt := range tests {
		if got := tt.tag.Canonical(); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestClassificationQualifies(t *testing.T) {
	tests := []struct {
		name string
		c    Classification
		want bool
	}{
		{"confident and complete", Classification{Company: "Acme", Title: "SWE", Confidence: 80}, true},
		{"at threshold", Classification{Company: "Acme", Title: "SWE", Confidence: 30}, true},
		{"below threshold", Classification{Company: "Acme", Title: "SWE", Confidence: 20}, false},
		{"missing company", Classification{Title: "SWE", Confidence: 90}, false},
		{"missing title", Classification{Company: "Acme", Confidence: 90}, false},
		{"zero value", Classification{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Qualifies(30); got != tt.want {
				t.Errorf("Qualifies = %v, want %v", got, tt.want)
			}
		})
	}
}
