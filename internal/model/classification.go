package model

// StageTag is the fine-grained stage vocabulary the classifier works in.
// It distinguishes interview substeps that the dashboard does not.
type StageTag string

// Classifier stage tags.
const (
	TagApplicationReceived StageTag = "application_received"
	TagPhoneScreen         StageTag = "phone_screen"
	TagTechnicalInterview  StageTag = "technical_interview"
	TagBehavioralInterview StageTag = "behavioral_interview"
	TagFinalInterview      StageTag = "final_interview"
	TagOffer               StageTag = "offer"
	TagRejected            StageTag = "rejected"
	TagOther               StageTag = "other"
)

// Canonical maps a tag down to the four-stage pipeline. The mapping is total:
// unknown or empty tags default to Applied.
func (t StageTag) Canonical() Stage {
	switch t {
	case TagPhoneScreen, TagTechnicalInterview, TagBehavioralInterview, TagFinalInterview:
		return StageInterview
	case TagOffer:
		return StageOffer
	case TagRejected:
		return StageRejected
	default:
		return StageApplied
	}
}

// Classification is the result of one LLM email analysis. A zero value means
// "no signal": the classifier returns it instead of an error when the model
// produced output it could not parse.
type Classification struct {
	Company    string
	Title      string
	Tag        StageTag
	Confidence int
}

// Qualifies reports whether the classification is actionable: confident
// enough and carrying both a company and a title.
func (c Classification) Qualifies(threshold int) bool {
	return c.Confidence >= threshold && c.Company != "" && c.Title != ""
}
