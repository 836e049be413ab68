package controllers

import (
	"net/http"

	"irb-review-api/models"
	"irb-review-api/services"

	"github.com/gin-gonic/gin"
)

/* ===== Triage ===== */

type triageRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

// TriageSubmission is the coordinator's completeness gate: accept pulls
// the submission into triage, return sends it back for revision.
func TriageSubmission(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req triageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := services.NewWorkflowService(getDB())
	switch req.Action {
	case "accept":
		submission, err := svc.TriageAccept(actor, submissionID, req.Note)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
	case "return":
		submission, err := svc.TriageReturn(actor, submissionID, req.Note)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be accept or return"})
	}
}

/* ===== Assignment ===== */

// AssignMainReviewer puts a main reviewer in charge of the submission.
func AssignMainReviewer(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req struct {
		ReviewerID int `json:"reviewer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := services.NewAssignmentService(getDB()).AssignMain(actor, submissionID, req.ReviewerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "submission": submission})
}

// AssignAssociateReviewers adds associate reviewers or statisticians.
// The first assignment moves the submission to under_review; later calls
// add reviewers without touching the status.
func AssignAssociateReviewers(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req struct {
		ReviewerIDs []int `json:"reviewer_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, assignments, err := services.NewAssignmentService(getDB()).
		AssignAssociates(actor, submissionID, req.ReviewerIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"submission":  submission,
		"assignments": assignments,
	})
}

/* ===== Reviews ===== */

// SubmitReview records the acting reviewer's recommendation. Calling it
// again before the decision replaces the earlier review.
func SubmitReview(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req services.ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := services.NewReviewService(getDB()).SubmitReview(actor, submissionID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "review": review})
}

// ListReviews returns the reviews the caller may see. Reviewers see only
// their own until the decision; the main reviewer and coordinators see
// all; the submitter sees anonymized copies after the decision.
func ListReviews(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	reviews, err := services.NewReviewService(getDB()).VisibleReviews(actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reviews": reviews, "total": len(reviews)})
}

/* ===== Decision ===== */

// RecordDecision closes the current version with the board's decision.
func RecordDecision(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req services.DecisionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, decision, err := services.NewDecisionService(getDB()).RecordDecision(actor, submissionID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"submission": submission,
		"decision":   decision,
	})
}

// GetDecision returns the decision for the submission's current version.
func GetDecision(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var submission models.Submission
	if err := getDB().Where("submission_id = ? AND deleted_at IS NULL", submissionID).First(&submission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}
	if roleID, _ := getCurrentRoleID(c); roleID != models.RoleAdmin {
		canRead, err := services.CanReadSubmission(getDB(), &submission, actor.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
			return
		}
		if !canRead {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this submission"})
			return
		}
	}

	decision, err := services.NewDecisionService(getDB()).CurrentDecision(submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "decision": decision})
}
