package models

import "time"

// Decision is the board's outcome for one submission version. It is written
// once and never updated; correcting a decision takes the revision path and
// produces a new version with its own decision.
type Decision struct {
	DecisionID   int            `gorm:"primaryKey;column:decision_id" json:"decision_id"`
	SubmissionID int            `gorm:"column:submission_id" json:"submission_id"`
	Version      int            `gorm:"column:version" json:"version"`
	Decision     Recommendation `gorm:"column:decision" json:"decision"`
	Rationale    *string        `gorm:"column:rationale" json:"rationale,omitempty"`
	Letter       *string        `gorm:"column:letter" json:"letter,omitempty"`
	Conditions   *string        `gorm:"column:conditions" json:"conditions,omitempty"`
	DecidedBy    int            `gorm:"column:decided_by" json:"decided_by"`
	DecidedAt    time.Time      `gorm:"column:decided_at" json:"decided_at"`

	Decider *User `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
}

// TableName overrides the table name for Decision.
func (Decision) TableName() string {
	return "submission_decisions"
}

// StatusAfterDecision maps a decision value to the submission status it
// produces: accept and decline are terminal, both revision outcomes send the
// submission back to the submitter.
func StatusAfterDecision(d Recommendation) SubmissionStatus {
	switch d {
	case RecommendationAccept:
		return StatusAccepted
	case RecommendationMinorRevise, RecommendationMajorRevise:
		return StatusRevisionRequested
	default:
		return StatusDeclined
	}
}
