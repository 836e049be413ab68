package models

import "time"

// Submission file types.
const (
	FileTypeProtocol      = "protocol"
	FileTypeConsentForm   = "consent_form"
	FileTypeSupportingDoc = "supporting_doc"
)

// ValidFileType reports whether t is a supported submission file type.
func ValidFileType(t string) bool {
	switch t {
	case FileTypeProtocol, FileTypeConsentForm, FileTypeSupportingDoc:
		return true
	}
	return false
}

// SubmissionFile records metadata for an uploaded document. The bytes
// themselves live in the blob store under StoredName; this table is the
// system of record for what was attached to a submission.
type SubmissionFile struct {
	FileID       int        `gorm:"primaryKey;column:file_id" json:"file_id"`
	SubmissionID int        `gorm:"column:submission_id" json:"submission_id"`
	FileType     string     `gorm:"column:file_type" json:"file_type"`
	OriginalName string     `gorm:"column:original_name" json:"original_name"`
	StoredName   string     `gorm:"column:stored_name" json:"-"`
	FileURL      string     `gorm:"column:file_url" json:"file_url"`
	MimeType     string     `gorm:"column:mime_type" json:"mime_type"`
	FileSize     int64      `gorm:"column:file_size" json:"file_size"`
	UploadedBy   int        `gorm:"column:uploaded_by" json:"uploaded_by"`
	UploadedAt   time.Time  `gorm:"column:uploaded_at" json:"uploaded_at"`
	DeleteAt     *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	Uploader *User `gorm:"foreignKey:UploadedBy" json:"uploader,omitempty"`
}

// TableName overrides the table name for SubmissionFile.
func (SubmissionFile) TableName() string {
	return "submission_files"
}
