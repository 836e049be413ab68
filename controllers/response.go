package controllers

import (
	"net/http"

	"irb-review-api/services"

	"github.com/gin-gonic/gin"
)

// GetQuestionnaire returns the questions currently visible for a
// submission, interleaved with the answers saved so far. Conditional
// questions appear and disappear as the driving answers change, so the
// client refetches this after saving.
func GetQuestionnaire(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	questions, responses, err := services.NewResponseService(getDB()).Questionnaire(actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"questions": questions,
		"responses": responses,
	})
}

// SaveResponses upserts a batch of answers for an editable submission.
func SaveResponses(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req struct {
		Responses []services.ResponseInput `json:"responses" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := services.NewResponseService(getDB()).SaveResponses(actor, submissionID, req.Responses)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	writeAudit(c, "response.save", "submission", submissionID, "",
		map[string]interface{}{"answers": len(saved)})

	c.JSON(http.StatusOK, gin.H{"success": true, "responses": saved, "total": len(saved)})
}

// SaveSingleResponse upserts one answer, addressed by question id.
func SaveSingleResponse(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := services.NewResponseService(getDB()).SaveResponse(actor, submissionID,
		services.ResponseInput{QuestionID: questionID, Answer: req.Answer})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "response": saved})
}

// GetResponses returns the answers saved so far, with AI provenance.
func GetResponses(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	_, responses, err := services.NewResponseService(getDB()).Questionnaire(actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "responses": responses, "total": len(responses)})
}

// ConfirmResponse marks one AI-prefilled answer as reviewed by the
// submitter. Until confirmed, a prefilled answer does not count toward
// the required questions.
func ConfirmResponse(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	response, err := services.NewResponseService(getDB()).ConfirmResponse(actor, submissionID, questionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "response": response})
}
