package models

import "time"

// Submission types.
const (
	SubmissionTypeStandard = "standard"
	SubmissionTypeExempt   = "exempt"
)

// SubmissionStatus is a submission's position in the review workflow.
type SubmissionStatus string

const (
	StatusDraft             SubmissionStatus = "draft"
	StatusSubmitted         SubmissionStatus = "submitted"
	StatusInTriage          SubmissionStatus = "in_triage"
	StatusAssignedToMain    SubmissionStatus = "assigned_to_main"
	StatusUnderReview       SubmissionStatus = "under_review"
	StatusDecisionMade      SubmissionStatus = "decision_made"
	StatusAccepted          SubmissionStatus = "accepted"
	StatusRevisionRequested SubmissionStatus = "revision_requested"
	StatusDeclined          SubmissionStatus = "declined"
)

// IsTerminal reports whether no further transitions are possible.
// revision_requested is not terminal: it ends the current version but the
// submitter may resubmit, starting the next one.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Submission is one protocol moving through a board's review workflow.
// Reviews, assignments and the decision are scoped to Version; a
// resubmission bumps the version and starts these over while the history
// keeps the full trail.
type Submission struct {
	SubmissionID     int              `gorm:"primaryKey;column:submission_id" json:"submission_id"`
	SubmissionNumber string           `gorm:"column:submission_number" json:"submission_number"`
	BoardID          int              `gorm:"column:board_id" json:"board_id"`
	ProjectID        *int             `gorm:"column:project_id" json:"project_id,omitempty"`
	SubmissionType   string           `gorm:"column:submission_type" json:"submission_type"`
	Status           SubmissionStatus `gorm:"column:status" json:"status"`
	Version          int              `gorm:"column:version" json:"version"`

	// LockVersion is the optimistic concurrency counter: every state change
	// is a compare-and-swap against it, so concurrent transitions cannot
	// interleave.
	LockVersion int `gorm:"column:lock_version" json:"-"`

	SubmittedBy    int     `gorm:"column:submitted_by" json:"submitted_by"`
	MainReviewerID *int    `gorm:"column:main_reviewer_id" json:"main_reviewer_id,omitempty"`
	AISummary      *string `gorm:"column:ai_summary" json:"ai_summary,omitempty"`

	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	SubmittedAt    *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	DecidedAt      *time.Time `gorm:"column:decided_at" json:"decided_at,omitempty"`
	LastRemindedAt *time.Time `gorm:"column:last_reminded_at" json:"-"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt      *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`

	Submitter    *User  `gorm:"foreignKey:SubmittedBy" json:"submitter,omitempty"`
	MainReviewer *User  `gorm:"foreignKey:MainReviewerID" json:"main_reviewer,omitempty"`
	Board        *Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`

	Responses   []Response           `gorm:"foreignKey:SubmissionID" json:"responses,omitempty"`
	Assignments []ReviewerAssignment `gorm:"foreignKey:SubmissionID" json:"assignments,omitempty"`
	Files       []SubmissionFile     `gorm:"foreignKey:SubmissionID" json:"files,omitempty"`
}

// TableName overrides the table name for Submission.
func (Submission) TableName() string {
	return "submissions"
}

// ValidSubmissionType reports whether t is standard or exempt.
func ValidSubmissionType(t string) bool {
	return t == SubmissionTypeStandard || t == SubmissionTypeExempt
}

// IsEditable reports whether the submitter may still change answers and
// files: only while drafting or revising.
func (s *Submission) IsEditable() bool {
	return s.Status == StatusDraft || s.Status == StatusRevisionRequested
}

// IsSubmitted reports whether the submission has left the draft stage at
// least once.
func (s *Submission) IsSubmitted() bool {
	return s.SubmittedAt != nil
}
