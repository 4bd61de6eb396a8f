// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a job application's position in the pipeline.
type Stage string

// Canonical pipeline stages, in reconciliation order.
const (
	StageApplied   Stage = "Applied"
	StageInterview Stage = "Interview"
	StageOffer     Stage = "Offer"
	StageRejected  Stage = "Rejected"
)

// Stages returns the canonical stages in pipeline order.
func Stages() []Stage {
	return []Stage{StageApplied, StageInterview, StageOffer, StageRejected}
}

// Rank returns the reconciliation rank of a stage. Unknown stages rank
// alongside Applied so legacy values never block a real update.
func (s Stage) Rank() int {
	switch s {
	case StageInterview:
		return 1
	case StageOffer:
		return 2
	case StageRejected:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the canonical stages.
func (s Stage) Valid() bool {
	switch s {
	case StageApplied, StageInterview, StageOffer, StageRejected:
		return true
	}
	return false
}

// ParseStage converts user input into a canonical stage.
func ParseStage(raw string) (Stage, error) {
	for _, s := range Stages() {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// ShouldAdvance reports whether an application currently at cur should move
// to next. Updates only ever move forward, with one exception: Rejected is
// absorbing and overrides any stage, including Offer.
func ShouldAdvance(cur, next Stage) bool {
	if next == StageRejected {
		return cur != StageRejected
	}
	return next.Rank() > cur.Rank()
}

// Application is one tracked job application.
type Application struct {
	DateAdded   time.Time `json:"date_added"`
	DateUpdated time.Time `json:"date_updated"`
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	Stage       Stage     `json:"stage"`
	ID          int64     `json:"id"`
}

// Key returns the case-folded identity used for deduplication. At most one
// application exists per key for a given user.
func (a *Application) Key() string {
	return ApplicationKey(a.Company, a.Position)
}

// ApplicationKey folds a (company, position) pair into a dedup key.
func ApplicationKey(company, position string) string {
	return strings.ToLower(strings.TrimSpace(company)) + "\x00" + strings.ToLower(strings.TrimSpace(position))
}

// Snapshot is the full application list grouped by canonical stage.
// Every canonical stage is present as a key, even when empty.
type Snapshot map[Stage][]Application

// NewApplicationEvent describes a single application first detected from email.
type NewApplicationEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Company   string    `json:"company"`
	Position  string    `json:"position"`
	Stage     Stage     `json:"stage"`
}
