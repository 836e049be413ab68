package models

import "time"

// Recommendation values shared by reviews and decisions.
type Recommendation string

const (
	RecommendationAccept      Recommendation = "accept"
	RecommendationMinorRevise Recommendation = "minor_revise"
	RecommendationMajorRevise Recommendation = "major_revise"
	RecommendationDecline     Recommendation = "decline"
)

// ValidRecommendation reports whether r is one of the four outcomes.
func ValidRecommendation(r Recommendation) bool {
	switch r {
	case RecommendationAccept, RecommendationMinorRevise, RecommendationMajorRevise, RecommendationDecline:
		return true
	}
	return false
}

// ReviewerAssignment attaches an associate reviewer or statistician to a
// submission version. The main reviewer is recorded on the submission row
// itself and never duplicated here.
type ReviewerAssignment struct {
	AssignmentID int       `gorm:"primaryKey;column:assignment_id" json:"assignment_id"`
	SubmissionID int       `gorm:"column:submission_id" json:"submission_id"`
	ReviewerID   int       `gorm:"column:reviewer_id" json:"reviewer_id"`
	Role         BoardRole `gorm:"column:role" json:"role"`
	Version      int       `gorm:"column:version" json:"version"`
	AssignedBy   int       `gorm:"column:assigned_by" json:"assigned_by"`
	AssignedAt   time.Time `gorm:"column:assigned_at" json:"assigned_at"`

	Reviewer *User `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
}

// Review is one reviewer's completed assessment of a submission version.
// A reviewer has at most one review per version; submitting again updates
// it in place.
type Review struct {
	ReviewID            int            `gorm:"primaryKey;column:review_id" json:"review_id"`
	SubmissionID        int            `gorm:"column:submission_id" json:"submission_id"`
	ReviewerID          int            `gorm:"column:reviewer_id" json:"reviewer_id"`
	ReviewerRole        BoardRole      `gorm:"column:reviewer_role" json:"reviewer_role"`
	Version             int            `gorm:"column:version" json:"version"`
	Recommendation      Recommendation `gorm:"column:recommendation" json:"recommendation"`
	Comments            *string        `gorm:"column:comments" json:"comments,omitempty"`
	FeedbackToSubmitter *string        `gorm:"column:feedback_to_submitter" json:"feedback_to_submitter,omitempty"`
	CompletedAt         time.Time      `gorm:"column:completed_at" json:"completed_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at" json:"updated_at"`

	Reviewer *User `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
}

// TableName overrides
func (ReviewerAssignment) TableName() string {
	return "reviewer_assignments"
}

func (Review) TableName() string {
	return "submission_reviews"
}
