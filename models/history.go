package models

import "time"

// StatusHistory is the append-only trail of state transitions. It is written
// in the same transaction as the status change it records and is the single
// source of truth for what happened to a submission and in what order
// (history_id is monotonic per submission). Rows are never updated or
// deleted.
type StatusHistory struct {
	HistoryID    int               `gorm:"primaryKey;column:history_id" json:"history_id"`
	SubmissionID int               `gorm:"column:submission_id" json:"submission_id"`
	Version      int               `gorm:"column:version" json:"version"`
	FromStatus   *SubmissionStatus `gorm:"column:from_status" json:"from_status"`
	ToStatus     SubmissionStatus  `gorm:"column:to_status" json:"to_status"`
	Note         *string           `gorm:"column:note" json:"note,omitempty"`
	ChangedBy    int               `gorm:"column:changed_by" json:"changed_by"`
	CreatedAt    time.Time         `gorm:"column:created_at" json:"created_at"`

	ChangedByUser *User `gorm:"foreignKey:ChangedBy" json:"changed_by_user,omitempty"`
}

// TableName overrides the table name for StatusHistory.
func (StatusHistory) TableName() string {
	return "submission_status_history"
}
