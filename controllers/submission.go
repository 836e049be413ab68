package controllers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"irb-review-api/models"
	"irb-review-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

/* ===== Submission CRUD ===== */

type createSubmissionRequest struct {
	BoardID        int    `json:"board_id" binding:"required"`
	SubmissionType string `json:"submission_type" binding:"required"`
	ProjectID      *int   `json:"project_id"`
}

// CreateSubmission opens a new draft on a board. Only drafts are created
// here; entering the workflow is a separate, guarded step.
func CreateSubmission(c *gin.Context) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidSubmissionType(req.SubmissionType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission_type must be standard or exempt"})
		return
	}

	var board models.Board
	if err := getDB().Where("board_id = ? AND delete_at IS NULL AND is_active = ?", req.BoardID, true).
		First(&board).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found or inactive"})
		return
	}

	submission := models.Submission{
		SubmissionNumber: generateSubmissionNumber(&board),
		BoardID:          board.BoardID,
		ProjectID:        req.ProjectID,
		SubmissionType:   req.SubmissionType,
		Status:           models.StatusDraft,
		Version:          1,
		LockVersion:      0,
		SubmittedBy:      userID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := getDB().Create(&submission).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create submission"})
		return
	}

	writeAudit(c, "submission.create", "submission", submission.SubmissionID, submission.SubmissionNumber,
		map[string]interface{}{"board_id": board.BoardID, "submission_type": req.SubmissionType})

	c.JSON(http.StatusCreated, gin.H{"success": true, "submission": submission})
}

// ListSubmissions returns the submissions the caller participates in:
// own drafts and submissions, coordinated boards, and review assignments
// for the current version. Admins see everything.
func ListSubmissions(c *gin.Context) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	roleID, _ := getCurrentRoleID(c)

	query := getDB().Preload("Submitter").Preload("Board").
		Where("submissions.deleted_at IS NULL")

	if roleID != models.RoleAdmin {
		query = query.Where(`submissions.submitted_by = ?
			OR submissions.main_reviewer_id = ?
			OR submissions.board_id IN (SELECT board_id FROM board_members WHERE user_id = ? AND role = ?)
			OR EXISTS (SELECT 1 FROM reviewer_assignments ra
				WHERE ra.submission_id = submissions.submission_id
				AND ra.version = submissions.version
				AND ra.reviewer_id = ?)`,
			userID, userID, userID, models.BoardRoleCoordinator, userID)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("submissions.status = ?", status)
	}
	if boardID := c.Query("board_id"); boardID != "" {
		query = query.Where("submissions.board_id = ?", boardID)
	}
	if submissionType := c.Query("submission_type"); submissionType != "" {
		query = query.Where("submissions.submission_type = ?", submissionType)
	}

	var submissions []models.Submission
	if err := query.Order("submissions.created_at DESC").Find(&submissions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch submissions"})
		return
	}

	// Reviewer identities stay hidden from plain submitters.
	for i := range submissions {
		if submissions[i].SubmittedBy == userID && !viewerIsReviewSide(&submissions[i], userID, roleID) {
			stripReviewerIdentity(&submissions[i])
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "submissions": submissions, "total": len(submissions)})
}

// GetSubmission returns one submission with its files and, for review-side
// viewers, the current assignments.
func GetSubmission(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	roleID, _ := getCurrentRoleID(c)

	var submission models.Submission
	err := getDB().Preload("Submitter").Preload("Board").Preload("MainReviewer").
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Where("delete_at IS NULL").Order("uploaded_at ASC")
		}).
		Where("submission_id = ? AND deleted_at IS NULL", submissionID).
		First(&submission).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}

	if roleID != models.RoleAdmin {
		canRead, err := services.CanReadSubmission(getDB(), &submission, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
			return
		}
		if !canRead {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this submission"})
			return
		}
	}

	if viewerIsReviewSide(&submission, userID, roleID) {
		var assignments []models.ReviewerAssignment
		getDB().Preload("Reviewer").
			Where("submission_id = ? AND version = ?", submission.SubmissionID, submission.Version).
			Order("assignment_id ASC").
			Find(&assignments)
		submission.Assignments = assignments
	} else {
		stripReviewerIdentity(&submission)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

// UpdateSubmission edits draft metadata. Once submitted the record is
// frozen until the board asks for a revision.
func UpdateSubmission(c *gin.Context) {
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
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the submitter can edit a submission"})
		return
	}
	if !submission.IsEditable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Submission is not editable in its current status"})
		return
	}

	var req struct {
		SubmissionType *string `json:"submission_type"`
		ProjectID      *int    `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.SubmissionType != nil {
		if !models.ValidSubmissionType(*req.SubmissionType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "submission_type must be standard or exempt"})
			return
		}
		updates["submission_type"] = *req.SubmissionType
	}
	if req.ProjectID != nil {
		updates["project_id"] = *req.ProjectID
	}

	if err := getDB().Model(&submission).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update submission"})
		return
	}

	writeAudit(c, "submission.update", "submission", submission.SubmissionID, submission.SubmissionNumber, updates)

	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

// DeleteSubmission soft deletes a draft. Anything that has entered the
// workflow stays; the history must remain accountable.
func DeleteSubmission(c *gin.Context) {
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
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the submitter can delete a submission"})
		return
	}
	if submission.Status != models.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Only drafts can be deleted"})
		return
	}

	now := time.Now()
	err := getDB().Model(&submission).Updates(map[string]interface{}{
		"deleted_at": now,
		"updated_at": now,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete submission"})
		return
	}

	writeAudit(c, "submission.delete", "submission", submission.SubmissionID, submission.SubmissionNumber, nil)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Submission deleted"})
}

/* ===== Workflow entry points ===== */

// SubmitSubmission moves a draft into the review workflow.
func SubmitSubmission(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	submission, err := services.NewWorkflowService(getDB()).Submit(actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

// ResubmitSubmission starts the next version after a revision request.
func ResubmitSubmission(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	submission, err := services.NewWorkflowService(getDB()).Resubmit(actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

// GetSubmissionHistory returns the full status trail, oldest first.
func GetSubmissionHistory(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	roleID, _ := getCurrentRoleID(c)

	var submission models.Submission
	if err := getDB().Where("submission_id = ? AND deleted_at IS NULL", submissionID).First(&submission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}
	if roleID != models.RoleAdmin {
		canRead, err := services.CanReadSubmission(getDB(), &submission, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
			return
		}
		if !canRead {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this submission"})
			return
		}
	}

	var history []models.StatusHistory
	err := getDB().Where("submission_id = ?", submissionID).
		Order("history_id ASC").
		Find(&history).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": history, "total": len(history)})
}

/* ===== Helpers ===== */

// viewerIsReviewSide reports whether the viewer sees the submission from
// the board's side: admin, coordinator, main reviewer or assigned
// reviewer. Plain submitters are not review-side, so reviewer identities
// are withheld from them.
func viewerIsReviewSide(sub *models.Submission, userID, roleID int) bool {
	if roleID == models.RoleAdmin {
		return true
	}
	if sub.MainReviewerID != nil && *sub.MainReviewerID == userID {
		return true
	}

	var memberCount int64
	getDB().Model(&models.BoardMember{}).
		Where("board_id = ? AND user_id = ? AND role = ?", sub.BoardID, userID, models.BoardRoleCoordinator).
		Count(&memberCount)
	if memberCount > 0 {
		return true
	}

	var assignedCount int64
	getDB().Model(&models.ReviewerAssignment{}).
		Where("submission_id = ? AND version = ? AND reviewer_id = ?", sub.SubmissionID, sub.Version, userID).
		Count(&assignedCount)
	return assignedCount > 0
}

func stripReviewerIdentity(sub *models.Submission) {
	sub.MainReviewerID = nil
	sub.MainReviewer = nil
	sub.Assignments = nil
}

/* ===== Submission numbers ===== */

// Global mutex for submission number generation.
var submissionNumberMutex sync.Mutex

// generateSubmissionNumber creates a human reference like IRB-2026-0042.
// The running number counts within the calendar year; on a rare collision
// the loop probes forward, then falls back to a random suffix.
func generateSubmissionNumber(board *models.Board) string {
	submissionNumberMutex.Lock()
	defer submissionNumberMutex.Unlock()

	year := time.Now().Year()

	prefix := "IRB"
	if board.BoardType == models.BoardTypeResearchCouncil {
		prefix = "RC"
	}

	prefixYearLike := fmt.Sprintf("%s-%d-%%", prefix, year)

	var count int64
	getDB().Model(&models.Submission{}).
		Where("board_id = ? AND submission_number LIKE ?", board.BoardID, prefixYearLike).
		Count(&count)

	for i := int64(1); i <= 10; i++ {
		potentialNumber := fmt.Sprintf("%s-%d-%04d", prefix, year, count+i)

		var existing int64
		getDB().Model(&models.Submission{}).
			Where("submission_number = ?", potentialNumber).
			Count(&existing)

		if existing == 0 {
			return potentialNumber
		}
	}

	// Several writers raced past the probe window; a random suffix still
	// yields a unique, recognizable number.
	bytes := make([]byte, 3)
	rand.Read(bytes)
	randomSuffix := strings.ToUpper(hex.EncodeToString(bytes))
	return fmt.Sprintf("%s-%d-R-%s", prefix, year, randomSuffix)
}
