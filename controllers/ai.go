package controllers

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"irb-review-api/services"

	"github.com/gin-gonic/gin"
)

// RunAIPrefill asks the board's AI provider to draft questionnaire
// answers from the uploaded protocol. Runs under a deadline and stops
// early if the client disconnects; prefilled answers stay pending until
// the submitter confirms each one.
func RunAIPrefill(c *gin.Context) {
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := getActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), prefillTimeout())
	defer cancel()

	// Provider resolution is per board; the service audits the run itself.
	svc := services.NewPrefillService(getDB(), nil)
	responses, err := svc.Run(ctx, actor, submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"responses": responses,
		"total":     len(responses),
	})
}

func prefillTimeout() time.Duration {
	if v := os.Getenv("AI_PREFILL_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 60 * time.Second
}
