package controllers

import (
	"net/http"
	"strings"
	"time"

	"irb-review-api/models"
	"irb-review-api/services"

	"github.com/gin-gonic/gin"
)

// canManageBoard allows platform admins and the board's coordinators to
// edit the questionnaire. Writes a 403 itself when the caller may not.
func canManageBoard(c *gin.Context, boardID int) bool {
	roleID, ok := getCurrentRoleID(c)
	if ok && roleID == models.RoleAdmin {
		return true
	}
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return false
	}

	var count int64
	getDB().Model(&models.BoardMember{}).
		Where("board_id = ? AND user_id = ? AND role = ?", boardID, userID, models.BoardRoleCoordinator).
		Count(&count)
	if count == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only an admin or the board coordinator can manage the questionnaire"})
		return false
	}
	return true
}

func loadBoardSection(c *gin.Context, sectionID int) (*models.Section, bool) {
	var section models.Section
	if err := getDB().Where("section_id = ?", sectionID).First(&section).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Section not found"})
		return nil, false
	}
	return &section, true
}

/* ===== Sections ===== */

// CreateSection adds a section to a board questionnaire.
func CreateSection(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !canManageBoard(c, boardID) {
		return
	}

	var req struct {
		SectionName  string `json:"section_name" binding:"required"`
		Slug         string `json:"slug"`
		DisplayOrder int    `json:"display_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var board models.Board
	if err := getDB().Where("board_id = ? AND delete_at IS NULL", boardID).First(&board).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	now := time.Now()
	section := models.Section{
		BoardID:      boardID,
		SectionName:  strings.TrimSpace(req.SectionName),
		Slug:         strings.TrimSpace(req.Slug),
		DisplayOrder: req.DisplayOrder,
		CreateAt:     &now,
	}
	if err := getDB().Create(&section).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create section"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "section": section})
}

// UpdateSection renames or reorders a section.
func UpdateSection(c *gin.Context) {
	sectionID, ok := parseIDParam(c, "sectionId")
	if !ok {
		return
	}
	section, ok := loadBoardSection(c, sectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var req struct {
		SectionName  *string `json:"section_name"`
		DisplayOrder *int    `json:"display_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"update_at": time.Now()}
	if req.SectionName != nil && strings.TrimSpace(*req.SectionName) != "" {
		updates["section_name"] = strings.TrimSpace(*req.SectionName)
	}
	if req.DisplayOrder != nil {
		updates["display_order"] = *req.DisplayOrder
	}
	if err := getDB().Model(section).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update section"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "section": section})
}

// DeleteSection removes an empty section. Sections that still hold live
// questions cannot be deleted; retire the questions first.
func DeleteSection(c *gin.Context) {
	sectionID, ok := parseIDParam(c, "sectionId")
	if !ok {
		return
	}
	section, ok := loadBoardSection(c, sectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var count int64
	getDB().Model(&models.Question{}).
		Where("section_id = ? AND delete_at IS NULL", sectionID).
		Count(&count)
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Section still contains questions"})
		return
	}

	if err := getDB().Delete(section).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete section"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Section deleted"})
}

/* ===== Questions ===== */

type questionRequest struct {
	QuestionText         string   `json:"question_text" binding:"required"`
	QuestionType         string   `json:"question_type" binding:"required"`
	Options              []string `json:"options"`
	IsRequired           bool     `json:"is_required"`
	DisplayOrder         int      `json:"display_order"`
	SubmissionTypeFilter string   `json:"submission_type_filter"`
}

// CreateQuestion adds a question to a section.
func CreateQuestion(c *gin.Context) {
	sectionID, ok := parseIDParam(c, "sectionId")
	if !ok {
		return
	}
	section, ok := loadBoardSection(c, sectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidQuestionType(req.QuestionType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown question type"})
		return
	}
	filter := req.SubmissionTypeFilter
	if filter == "" {
		filter = models.FilterBoth
	}
	if filter != models.FilterStandard && filter != models.FilterExempt && filter != models.FilterBoth {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown submission type filter"})
		return
	}

	now := time.Now()
	question := models.Question{
		SectionID:            sectionID,
		QuestionText:         strings.TrimSpace(req.QuestionText),
		QuestionType:         req.QuestionType,
		IsRequired:           req.IsRequired,
		DisplayOrder:         req.DisplayOrder,
		IsActive:             true,
		SubmissionTypeFilter: filter,
		CreateAt:             &now,
	}
	if question.IsChoiceType() {
		if len(req.Options) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Choice questions need at least one option"})
			return
		}
		if err := question.SetOptionList(req.Options); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid options"})
			return
		}
	}

	if err := getDB().Create(&question).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create question"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "question": question})
}

// UpdateQuestion edits question text, ordering, options or active flag.
// The question type is fixed after creation so stored answers stay valid.
func UpdateQuestion(c *gin.Context) {
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}

	var question models.Question
	if err := getDB().Where("question_id = ? AND delete_at IS NULL", questionID).First(&question).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	section, ok := loadBoardSection(c, question.SectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var req struct {
		QuestionText         *string  `json:"question_text"`
		Options              []string `json:"options"`
		IsRequired           *bool    `json:"is_required"`
		DisplayOrder         *int     `json:"display_order"`
		IsActive             *bool    `json:"is_active"`
		SubmissionTypeFilter *string  `json:"submission_type_filter"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"update_at": time.Now()}
	if req.QuestionText != nil && strings.TrimSpace(*req.QuestionText) != "" {
		updates["question_text"] = strings.TrimSpace(*req.QuestionText)
	}
	if req.IsRequired != nil {
		updates["is_required"] = *req.IsRequired
	}
	if req.DisplayOrder != nil {
		updates["display_order"] = *req.DisplayOrder
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.SubmissionTypeFilter != nil {
		f := *req.SubmissionTypeFilter
		if f != models.FilterStandard && f != models.FilterExempt && f != models.FilterBoth {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown submission type filter"})
			return
		}
		updates["submission_type_filter"] = f
	}
	if req.Options != nil {
		if !question.IsChoiceType() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Options apply only to choice questions"})
			return
		}
		if err := question.SetOptionList(req.Options); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid options"})
			return
		}
		updates["options"] = question.Options
	}

	if err := getDB().Model(&question).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "question": question})
}

// DeleteQuestion soft deletes a question. Saved answers keep their rows;
// the question simply stops appearing in questionnaires.
func DeleteQuestion(c *gin.Context) {
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}

	var question models.Question
	if err := getDB().Where("question_id = ? AND delete_at IS NULL", questionID).First(&question).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	section, ok := loadBoardSection(c, question.SectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var dependents int64
	getDB().Model(&models.QuestionCondition{}).
		Where("depends_on_question_id = ?", questionID).
		Count(&dependents)
	if dependents > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Other questions depend on this question; remove those conditions first"})
		return
	}

	now := time.Now()
	err := getDB().Model(&question).Updates(map[string]interface{}{
		"delete_at": now,
		"is_active": false,
		"update_at": now,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Question deleted"})
}

// GetBoardSections lists a board's sections in display order.
func GetBoardSections(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var sections []models.Section
	err := getDB().Where("board_id = ?", boardID).
		Order("display_order ASC, section_id ASC").
		Find(&sections).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sections": sections, "total": len(sections)})
}

// GetBoardQuestions lists every live question on a board with its
// conditions, grouped by section order.
func GetBoardQuestions(c *gin.Context) {
	boardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var questions []models.Question
	err := getDB().Preload("Conditions").
		Joins("JOIN board_sections ON board_sections.section_id = board_questions.section_id").
		Where("board_sections.board_id = ? AND board_questions.delete_at IS NULL", boardID).
		Order("board_sections.display_order ASC, board_questions.display_order ASC, board_questions.question_id ASC").
		Find(&questions).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "questions": questions, "total": len(questions)})
}

/* ===== Conditions ===== */

type conditionRequest struct {
	DependsOnQuestionID int                      `json:"depends_on_question_id" binding:"required"`
	Operator            models.ConditionOperator `json:"operator" binding:"required"`
	CompareValue        string                   `json:"compare_value"`
}

// AddQuestionCondition attaches a visibility condition to a question.
// The dependency must live on the same board and must not close a cycle.
func AddQuestionCondition(c *gin.Context) {
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}

	var question models.Question
	if err := getDB().Where("question_id = ? AND delete_at IS NULL", questionID).First(&question).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	section, ok := loadBoardSection(c, question.SectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidOperator(req.Operator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown operator"})
		return
	}
	if req.DependsOnQuestionID == questionID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A question cannot depend on itself"})
		return
	}

	var depends models.Question
	err := getDB().
		Joins("JOIN board_sections ON board_sections.section_id = board_questions.section_id").
		Where("board_questions.question_id = ? AND board_questions.delete_at IS NULL AND board_sections.board_id = ?",
			req.DependsOnQuestionID, section.BoardID).
		First(&depends).Error
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dependency question not found on this board"})
		return
	}

	existing, err := boardConditions(section.BoardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conditions"})
		return
	}
	if services.WouldCreateCycle(existing, questionID, req.DependsOnQuestionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Condition would create a dependency cycle"})
		return
	}

	condition := models.QuestionCondition{
		QuestionID:          questionID,
		DependsOnQuestionID: req.DependsOnQuestionID,
		Operator:            req.Operator,
		CompareValue:        req.CompareValue,
		CreatedAt:           time.Now(),
	}
	if err := getDB().Create(&condition).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create condition"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "condition": condition})
}

// RemoveQuestionCondition deletes one visibility condition.
func RemoveQuestionCondition(c *gin.Context) {
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}
	conditionID, ok := parseIDParam(c, "conditionId")
	if !ok {
		return
	}

	var question models.Question
	if err := getDB().Where("question_id = ?", questionID).First(&question).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	section, ok := loadBoardSection(c, question.SectionID)
	if !ok {
		return
	}
	if !canManageBoard(c, section.BoardID) {
		return
	}

	result := getDB().Where("condition_id = ? AND question_id = ?", conditionID, questionID).
		Delete(&models.QuestionCondition{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete condition"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Condition not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Condition removed"})
}

// boardConditions loads every condition attached to a board's questions.
func boardConditions(boardID int) ([]models.QuestionCondition, error) {
	var conditions []models.QuestionCondition
	err := getDB().
		Joins("JOIN board_questions ON board_questions.question_id = question_conditions.question_id").
		Joins("JOIN board_sections ON board_sections.section_id = board_questions.section_id").
		Where("board_sections.board_id = ? AND board_questions.delete_at IS NULL", boardID).
		Find(&conditions).Error
	return conditions, err
}
