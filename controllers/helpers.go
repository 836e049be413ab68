package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"
	"irb-review-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

/* ==========================
   Helpers
   ========================== */

func getDB() *gorm.DB { return config.DB }

func getCurrentUserID(c *gin.Context) (int, bool) {
	if v, ok := c.Get("userID"); ok {
		switch t := v.(type) {
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			return int(t), true
		case uint:
			return int(t), true
		}
	}
	return 0, false
}

func getCurrentRoleID(c *gin.Context) (int, bool) {
	if v, ok := c.Get("roleID"); ok {
		switch t := v.(type) {
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			return int(t), true
		case uint:
			return int(t), true
		}
	}
	return 0, false
}

// getActor builds the service-layer actor from the request context.
func getActor(c *gin.Context) (services.Actor, bool) {
	userID, ok := getCurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return services.Actor{}, false
	}
	return services.Actor{
		UserID:    userID,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}, true
}

func parseIDParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondServiceError translates the service error taxonomy into HTTP
// responses. Every workflow error reaches the client through here.
func respondServiceError(c *gin.Context, err error) {
	var notFound *services.NotFoundError
	var authz *services.AuthorizationError
	var validation *services.ValidationError
	var invalidState *services.InvalidStateTransitionError
	var stale *services.StaleStateConflictError
	var adapter *services.ExternalAdapterFailure

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"error": authz.Error()})
	case errors.As(err, &validation):
		payload := gin.H{"error": validation.Error()}
		if validation.QuestionID != 0 {
			payload["question_id"] = validation.QuestionID
		}
		if validation.Field != "" {
			payload["field"] = validation.Field
		}
		c.JSON(http.StatusBadRequest, payload)
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{"error": invalidState.Error()})
	case errors.As(err, &stale):
		// The caller should refetch and retry; never retried server-side.
		c.JSON(http.StatusConflict, gin.H{"error": stale.Error(), "retry": true})
	case errors.As(err, &adapter):
		c.JSON(http.StatusBadGateway, gin.H{"error": adapter.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func ptr[T any](v T) *T { return &v }

// writeAudit records a controller-side mutation. Workflow transitions
// audit inside their service transaction; this covers the rest (drafts,
// uploads, questionnaire edits). Failures only log: the audit trail must
// never break the request that already committed.
func writeAudit(c *gin.Context, action, entityType string, entityID int, entityNumber string, values interface{}) {
	userID, _ := getCurrentUserID(c)

	audit := models.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		IPAddress:  c.ClientIP(),
		CreatedAt:  time.Now(),
	}
	if entityNumber != "" {
		audit.EntityNumber = &entityNumber
	}
	if values != nil {
		if serialized, err := json.Marshal(values); err == nil {
			audit.NewValues = ptr(string(serialized))
		}
	}
	if ua := strings.TrimSpace(c.GetHeader("User-Agent")); ua != "" {
		audit.UserAgent = &ua
	}

	if err := getDB().Create(&audit).Error; err != nil {
		log.Printf("audit write failed (%s %s/%d): %v", action, entityType, entityID, err)
	}
}
