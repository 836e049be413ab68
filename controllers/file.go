package controllers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"irb-review-api/models"
	"irb-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Documents reviewers actually read: protocols and forms.
var allowedUploadExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".odt":  true,
	".txt":  true,
}

const defaultMaxUploadMB = 20

// UploadSubmissionFile attaches a document to an editable submission.
// Bytes go to UPLOAD_PATH under a uuid name; the metadata row is the
// system of record.
func UploadSubmissionFile(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var submission models.Submission
	if err := getDB().Where("submission_id = ? AND deleted_at IS NULL", submissionID).First(&submission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}
	if submission.SubmittedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the submitter can upload files"})
		return
	}
	if !submission.IsEditable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Submission is not editable in its current status"})
		return
	}

	fileType := c.PostForm("file_type")
	if !models.ValidFileType(fileType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_type must be protocol, consent_form or supporting_doc"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedUploadExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed"})
		return
	}
	if file.Size > maxUploadBytes() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	storedName := uuid.New().String() + ext
	folder := submissionUploadDir(submissionID)
	if err := os.MkdirAll(folder, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload folder"})
		return
	}
	if err := c.SaveUploadedFile(file, filepath.Join(folder, storedName)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	record := models.SubmissionFile{
		SubmissionID: submissionID,
		FileType:     fileType,
		OriginalName: filepath.Base(file.Filename),
		StoredName:   storedName,
		FileURL:      fmt.Sprintf("/api/v1/submissions/%d/files", submissionID),
		MimeType:     file.Header.Get("Content-Type"),
		FileSize:     file.Size,
		UploadedBy:   userID,
		UploadedAt:   time.Now(),
	}
	if err := getDB().Create(&record).Error; err != nil {
		os.Remove(filepath.Join(folder, storedName))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record file"})
		return
	}
	record.FileURL = fmt.Sprintf("/api/v1/submissions/%d/files/%d/download", submissionID, record.FileID)
	getDB().Model(&record).Update("file_url", record.FileURL)

	writeAudit(c, "file.upload", "submission", submissionID, submission.SubmissionNumber,
		map[string]interface{}{"file_id": record.FileID, "file_type": fileType, "original_name": record.OriginalName})

	c.JSON(http.StatusCreated, gin.H{"success": true, "file": record})
}

// ListSubmissionFiles returns the live file metadata for a submission.
func ListSubmissionFiles(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	submission, ok := loadReadableSubmission(c, submissionID)
	if !ok {
		return
	}

	var files []models.SubmissionFile
	err := getDB().Where("submission_id = ? AND delete_at IS NULL", submission.SubmissionID).
		Order("uploaded_at ASC").
		Find(&files).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "files": files, "total": len(files)})
}

// DownloadSubmissionFile streams the stored bytes to a participant.
func DownloadSubmissionFile(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := parseIDParam(c, "fileId")
	if !ok {
		return
	}
	submission, ok := loadReadableSubmission(c, submissionID)
	if !ok {
		return
	}

	var record models.SubmissionFile
	err := getDB().Where("file_id = ? AND submission_id = ? AND delete_at IS NULL", fileID, submission.SubmissionID).
		First(&record).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	path := filepath.Join(submissionUploadDir(submissionID), record.StoredName)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File missing from storage"})
		return
	}

	c.FileAttachment(path, record.OriginalName)
}

// DeleteSubmissionFile soft deletes a file while the submission is still
// editable. The bytes stay on disk; only the metadata row is retired.
func DeleteSubmissionFile(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := parseIDParam(c, "fileId")
	if !ok {
		return
	}
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var submission models.Submission
	if err := getDB().Where("submission_id = ? AND deleted_at IS NULL", submissionID).First(&submission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}
	if submission.SubmittedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the submitter can delete files"})
		return
	}
	if !submission.IsEditable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Submission is not editable in its current status"})
		return
	}

	now := time.Now()
	result := getDB().Model(&models.SubmissionFile{}).
		Where("file_id = ? AND submission_id = ? AND delete_at IS NULL", fileID, submissionID).
		Update("delete_at", now)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete file"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	writeAudit(c, "file.delete", "submission", submissionID, submission.SubmissionNumber,
		map[string]interface{}{"file_id": fileID})

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "File deleted"})
}

// loadReadableSubmission loads a submission and enforces read access for
// the caller. Writes the error response itself.
func loadReadableSubmission(c *gin.Context, submissionID int) (*models.Submission, bool) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	var submission models.Submission
	if err := getDB().Where("submission_id = ? AND deleted_at IS NULL", submissionID).First(&submission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return nil, false
	}

	if roleID, _ := getCurrentRoleID(c); roleID != models.RoleAdmin {
		canRead, err := services.CanReadSubmission(getDB(), &submission, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
			return nil, false
		}
		if !canRead {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this submission"})
			return nil, false
		}
	}
	return &submission, true
}

func submissionUploadDir(submissionID int) string {
	uploadPath := os.Getenv("UPLOAD_PATH")
	if uploadPath == "" {
		uploadPath = "./uploads"
	}
	return filepath.Join(uploadPath, "submissions", strconv.Itoa(submissionID))
}

func maxUploadBytes() int64 {
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil && mb > 0 {
			return int64(mb) << 20
		}
	}
	return defaultMaxUploadMB << 20
}
