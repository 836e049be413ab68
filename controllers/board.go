package controllers

import (
	"net/http"
	"strings"
	"time"

	"irb-review-api/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type boardRequest struct {
	BoardName     string `json:"board_name" binding:"required"`
	BoardType     string `json:"board_type" binding:"required"`
	InstitutionID *int   `json:"institution_id"`
	AIEnabled     bool   `json:"ai_enabled"`
	AIProvider    string `json:"ai_provider"`
	AIModel       string `json:"ai_model"`
	AIMaxTokens   int    `json:"ai_max_tokens"`
}

func (r *boardRequest) validate() (string, bool) {
	if r.BoardType != models.BoardTypeIRB && r.BoardType != models.BoardTypeResearchCouncil {
		return "board_type must be irb or research_council", false
	}
	// Research councils belong to an institution; IRBs may be standalone.
	if r.BoardType == models.BoardTypeResearchCouncil && r.InstitutionID == nil {
		return "institution_id is required for research_council boards", false
	}
	return "", true
}

// CreateBoard creates a review board. Admin only.
func CreateBoard(c *gin.Context) {
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	now := time.Now()
	board := models.Board{
		BoardName:     strings.TrimSpace(req.BoardName),
		BoardType:     req.BoardType,
		InstitutionID: req.InstitutionID,
		IsActive:      true,
		AIEnabled:     req.AIEnabled,
		AIProvider:    req.AIProvider,
		AIModel:       req.AIModel,
		AIMaxTokens:   req.AIMaxTokens,
		CreateAt:      &now,
	}
	if err := getDB().Create(&board).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create board"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "board": board})
}

// UpdateBoard updates board settings. Admin only.
func UpdateBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var board models.Board
	if err := getDB().Where("board_id = ? AND delete_at IS NULL", boardID).First(&board).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	var req struct {
		BoardName   *string `json:"board_name"`
		IsActive    *bool   `json:"is_active"`
		AIEnabled   *bool   `json:"ai_enabled"`
		AIProvider  *string `json:"ai_provider"`
		AIModel     *string `json:"ai_model"`
		AIMaxTokens *int    `json:"ai_max_tokens"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"update_at": time.Now()}
	if req.BoardName != nil && strings.TrimSpace(*req.BoardName) != "" {
		updates["board_name"] = strings.TrimSpace(*req.BoardName)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.AIEnabled != nil {
		updates["ai_enabled"] = *req.AIEnabled
	}
	if req.AIProvider != nil {
		updates["ai_provider"] = *req.AIProvider
	}
	if req.AIModel != nil {
		updates["ai_model"] = *req.AIModel
	}
	if req.AIMaxTokens != nil {
		updates["ai_max_tokens"] = *req.AIMaxTokens
	}

	if err := getDB().Model(&board).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update board"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "board": board})
}

// ListBoards returns active boards visible to any authenticated user.
func ListBoards(c *gin.Context) {
	query := getDB().Where("delete_at IS NULL")
	if c.Query("include_inactive") != "true" {
		query = query.Where("is_active = ?", true)
	}
	if boardType := c.Query("type"); boardType != "" {
		query = query.Where("board_type = ?", boardType)
	}

	var boards []models.Board
	if err := query.Order("board_name ASC").Find(&boards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch boards"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "boards": boards, "total": len(boards)})
}

// GetBoard returns one board with its sections, questions and members.
func GetBoard(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var board models.Board
	err := getDB().
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Where("delete_at IS NULL").Order("display_order ASC, question_id ASC")
		}).
		Preload("Sections.Questions.Conditions").
		Preload("Members.User").
		Where("board_id = ? AND delete_at IS NULL", boardID).
		First(&board).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "board": board})
}

// ListBoardMembers returns a board's membership rows with user details.
// Coordinators use this roster when picking reviewers to assign.
func ListBoardMembers(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var board models.Board
	if err := getDB().Where("board_id = ? AND delete_at IS NULL", boardID).First(&board).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	var members []models.BoardMember
	err := getDB().Preload("User").
		Where("board_id = ?", boardID).
		Order("member_id ASC").
		Find(&members).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch board members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "members": members, "total": len(members)})
}

type memberRequest struct {
	UserID int              `json:"user_id" binding:"required"`
	Role   models.BoardRole `json:"role" binding:"required"`
}

// AddBoardMember grants a user a role on a board. Admin only. A user may
// hold several roles on one board, one row each.
func AddBoardMember(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidBoardRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown board role"})
		return
	}

	var board models.Board
	if err := getDB().Where("board_id = ? AND delete_at IS NULL", boardID).First(&board).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}
	var user models.User
	if err := getDB().Where("user_id = ? AND delete_at IS NULL", req.UserID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var existing models.BoardMember
	if err := getDB().Where("board_id = ? AND user_id = ? AND role = ?", boardID, req.UserID, req.Role).
		First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already holds this role on the board"})
		return
	}

	member := models.BoardMember{
		BoardID:   boardID,
		UserID:    req.UserID,
		Role:      req.Role,
		CreatedAt: time.Now(),
	}
	if err := getDB().Create(&member).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add board member"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "member": member})
}

// RemoveBoardMember revokes a membership row. Admin only. Existing
// assignments are untouched: removal only blocks future actions.
func RemoveBoardMember(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	memberID, ok := parseIDParam(c, "memberId")
	if !ok {
		return
	}

	result := getDB().Where("member_id = ? AND board_id = ?", memberID, boardID).Delete(&models.BoardMember{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove board member"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board member not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Board member removed"})
}
