package models

import "time"

// Response is a submission's answer to one question. AI-prefilled answers
// stay flagged until the submitter edits or confirms them; an unconfirmed
// AI answer never satisfies the completeness check at submit time.
type Response struct {
	ResponseID    int       `gorm:"primaryKey;column:response_id" json:"response_id"`
	SubmissionID  int       `gorm:"column:submission_id" json:"submission_id"`
	QuestionID    int       `gorm:"column:question_id" json:"question_id"`
	Answer        string    `gorm:"column:answer" json:"answer"`
	AIPrefilled   bool      `gorm:"column:ai_prefilled" json:"ai_prefilled"`
	UserConfirmed bool      `gorm:"column:user_confirmed" json:"user_confirmed"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name for Response.
func (Response) TableName() string {
	return "submission_responses"
}

// CountsAsAnswered reports whether the response satisfies the required-answer
// check: it must be non-empty and either human-authored or confirmed.
func (r *Response) CountsAsAnswered() bool {
	if r.Answer == "" {
		return false
	}
	if r.AIPrefilled && !r.UserConfirmed {
		return false
	}
	return true
}
