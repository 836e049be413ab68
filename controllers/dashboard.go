package controllers

import (
	"net/http"
	"strconv"
	"time"

	"irb-review-api/models"

	"github.com/gin-gonic/gin"
)

// GetDashboardStats returns workload statistics for the caller: admins
// see the whole system, everyone else sees their own submissions plus
// whatever review work they carry.
func GetDashboardStats(c *gin.Context) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication context missing"})
		return
	}
	roleID, _ := getCurrentRoleID(c)

	var stats map[string]interface{}
	if roleID == models.RoleAdmin {
		stats = getAdminDashboard()
	} else {
		stats = getUserDashboard(userID)
	}
	if stats == nil {
		stats = make(map[string]interface{})
	}
	stats["current_date"] = time.Now().Format("2006-01-02")

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// getUserDashboard aggregates the caller's submitter and reviewer sides.
func getUserDashboard(userID int) map[string]interface{} {
	stats := make(map[string]interface{})

	var mine struct {
		Total            int64 `json:"total"`
		Drafts           int64 `json:"drafts"`
		InReview         int64 `json:"in_review"`
		AwaitingRevision int64 `json:"awaiting_revision"`
		Accepted         int64 `json:"accepted"`
		Declined         int64 `json:"declined"`
	}

	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND deleted_at IS NULL", userID).
		Count(&mine.Total)
	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusDraft).
		Count(&mine.Drafts)
	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND status IN ? AND deleted_at IS NULL", userID, []models.SubmissionStatus{
			models.StatusSubmitted, models.StatusInTriage, models.StatusAssignedToMain,
			models.StatusUnderReview, models.StatusDecisionMade,
		}).
		Count(&mine.InReview)
	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusRevisionRequested).
		Count(&mine.AwaitingRevision)
	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusAccepted).
		Count(&mine.Accepted)
	getDB().Model(&models.Submission{}).
		Where("submitted_by = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusDeclined).
		Count(&mine.Declined)

	stats["my_submissions"] = mine

	// Review workload: open assignments on the current version that have
	// no completed review yet.
	var reviewLoad struct {
		Pending   int64 `json:"pending"`
		Completed int64 `json:"completed"`
	}
	getDB().Table("reviewer_assignments ra").
		Joins("JOIN submissions s ON s.submission_id = ra.submission_id AND s.version = ra.version").
		Where(`ra.reviewer_id = ? AND s.deleted_at IS NULL AND s.status = ?
			AND NOT EXISTS (SELECT 1 FROM submission_reviews r
				WHERE r.submission_id = ra.submission_id
				AND r.version = ra.version
				AND r.reviewer_id = ra.reviewer_id)`,
			userID, models.StatusUnderReview).
		Count(&reviewLoad.Pending)
	getDB().Model(&models.Review{}).
		Where("reviewer_id = ?", userID).
		Count(&reviewLoad.Completed)

	stats["my_reviews"] = reviewLoad

	// Coordinator queues, when the user coordinates any board.
	var queue struct {
		AwaitingTriage int64 `json:"awaiting_triage"`
		Active         int64 `json:"active"`
	}
	coordinated := getDB().Model(&models.BoardMember{}).
		Select("board_id").
		Where("user_id = ? AND role = ?", userID, models.BoardRoleCoordinator)

	getDB().Model(&models.Submission{}).
		Where("board_id IN (?) AND status = ? AND deleted_at IS NULL", coordinated, models.StatusSubmitted).
		Count(&queue.AwaitingTriage)
	getDB().Model(&models.Submission{}).
		Where("board_id IN (?) AND status IN ? AND deleted_at IS NULL", coordinated, []models.SubmissionStatus{
			models.StatusInTriage, models.StatusAssignedToMain, models.StatusUnderReview,
		}).
		Count(&queue.Active)

	stats["coordination"] = queue

	var recent []models.Submission
	getDB().Preload("Board").
		Where("submitted_by = ? AND deleted_at IS NULL", userID).
		Order("updated_at DESC").
		Limit(5).
		Find(&recent)
	stats["recent_submissions"] = recent

	return stats
}

// GetCoordinatorDashboard returns the triage and assignment queues for
// one board the caller coordinates.
func GetCoordinatorDashboard(c *gin.Context) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication context missing"})
		return
	}

	boardID, err := strconv.Atoi(c.Query("board_id"))
	if err != nil || boardID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "board_id query parameter is required"})
		return
	}

	roleID, _ := getCurrentRoleID(c)
	if roleID != models.RoleAdmin {
		var count int64
		getDB().Model(&models.BoardMember{}).
			Where("board_id = ? AND user_id = ? AND role = ?", boardID, userID, models.BoardRoleCoordinator).
			Count(&count)
		if count == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "You do not coordinate this board"})
			return
		}
	}

	queues := make(map[string]interface{})

	var awaitingTriage []models.Submission
	getDB().Preload("Submitter").
		Where("board_id = ? AND status = ? AND deleted_at IS NULL", boardID, models.StatusSubmitted).
		Order("submitted_at ASC").
		Find(&awaitingTriage)
	queues["awaiting_triage"] = awaitingTriage

	var awaitingAssignment []models.Submission
	getDB().Preload("Submitter").
		Where("board_id = ? AND status = ? AND deleted_at IS NULL", boardID, models.StatusInTriage).
		Order("updated_at ASC").
		Find(&awaitingAssignment)
	queues["awaiting_assignment"] = awaitingAssignment

	var underReview []models.Submission
	getDB().Preload("Submitter").Preload("MainReviewer").
		Where("board_id = ? AND status IN ? AND deleted_at IS NULL", boardID, []models.SubmissionStatus{
			models.StatusAssignedToMain, models.StatusUnderReview,
		}).
		Order("updated_at ASC").
		Find(&underReview)
	queues["in_review"] = underReview

	c.JSON(http.StatusOK, gin.H{"success": true, "board_id": boardID, "queues": queues})
}

// GetReviewerDashboard returns the caller's review queue: assignments on
// the current version that still need a review, then everything done.
func GetReviewerDashboard(c *gin.Context) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication context missing"})
		return
	}

	var pending []models.Submission
	getDB().Preload("Board").
		Joins("JOIN reviewer_assignments ra ON ra.submission_id = submissions.submission_id AND ra.version = submissions.version").
		Where(`ra.reviewer_id = ? AND submissions.deleted_at IS NULL AND submissions.status = ?
			AND NOT EXISTS (SELECT 1 FROM submission_reviews r
				WHERE r.submission_id = ra.submission_id
				AND r.version = ra.version
				AND r.reviewer_id = ra.reviewer_id)`,
			userID, models.StatusUnderReview).
		Order("submissions.updated_at ASC").
		Find(&pending)

	var managed []models.Submission
	getDB().Preload("Board").
		Where("main_reviewer_id = ? AND status IN ? AND deleted_at IS NULL", userID, []models.SubmissionStatus{
			models.StatusAssignedToMain, models.StatusUnderReview,
		}).
		Order("updated_at ASC").
		Find(&managed)

	var completed []models.Review
	getDB().Where("reviewer_id = ?", userID).
		Order("completed_at DESC").
		Limit(20).
		Find(&completed)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"pending":   pending,
		"managed":   managed,
		"completed": completed,
	})
}

// getAdminDashboard aggregates system-wide counts.
func getAdminDashboard() map[string]interface{} {
	stats := make(map[string]interface{})
	overview := make(map[string]interface{})

	var totalSubmissions int64
	getDB().Model(&models.Submission{}).Where("deleted_at IS NULL").Count(&totalSubmissions)
	overview["total_submissions"] = totalSubmissions

	var statusRows []struct {
		Status models.SubmissionStatus
		Total  int64
	}
	getDB().Model(&models.Submission{}).
		Select("status, COUNT(*) AS total").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(&statusRows)

	byStatus := make(map[string]int64, len(statusRows))
	for _, row := range statusRows {
		byStatus[string(row.Status)] = row.Total
	}
	overview["by_status"] = byStatus

	var totalBoards int64
	getDB().Model(&models.Board{}).Where("delete_at IS NULL AND is_active = ?", true).Count(&totalBoards)
	overview["active_boards"] = totalBoards

	var totalUsers int64
	getDB().Model(&models.User{}).Where("delete_at IS NULL").Count(&totalUsers)
	overview["total_users"] = totalUsers

	stats["overview"] = overview

	// Per-board workload, busiest first.
	var boardRows []struct {
		BoardID   int    `json:"board_id"`
		BoardName string `json:"board_name"`
		Open      int64  `json:"open"`
		Decided   int64  `json:"decided"`
	}
	getDB().Table("boards b").
		Select(`b.board_id, b.board_name,
			SUM(CASE WHEN s.status IN ('submitted','in_triage','assigned_to_main','under_review','decision_made') THEN 1 ELSE 0 END) AS open,
			SUM(CASE WHEN s.status IN ('accepted','declined') THEN 1 ELSE 0 END) AS decided`).
		Joins("LEFT JOIN submissions s ON s.board_id = b.board_id AND s.deleted_at IS NULL").
		Where("b.delete_at IS NULL").
		Group("b.board_id, b.board_name").
		Order("open DESC").
		Scan(&boardRows)
	stats["boards"] = boardRows

	return stats
}
