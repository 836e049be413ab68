package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// Actor identifies the authenticated caller of a workflow operation.
// Board-level authority is resolved per submission from board_members;
// the request metadata feeds the audit trail.
type Actor struct {
	UserID    int
	IPAddress string
	UserAgent string
}

// WorkflowService drives the submission state machine: submit, triage
// and resubmission. Assignment, review and decision operations live in
// their own services and share this file's transition plumbing.
type WorkflowService struct {
	db *gorm.DB
}

func NewWorkflowService(db *gorm.DB) *WorkflowService {
	if db == nil {
		db = config.DB
	}
	return &WorkflowService{db: db}
}

// Submit moves a draft to submitted after checking that every required,
// currently visible question has a countable answer. Coordinators of the
// board are notified.
func (s *WorkflowService) Submit(actor Actor, submissionID int) (*models.Submission, error) {
	var sub *models.Submission
	var mails []mailMessage

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		roles, err := boardRoles(tx, sub.BoardID, actor.UserID)
		if err != nil {
			return err
		}
		to, err := nextStatus(sub.SubmissionID, sub.Status, EventSubmit, actorContextFor(sub, roles, actor.UserID))
		if err != nil {
			return err
		}

		questions, err := boardQuestions(tx, sub.BoardID)
		if err != nil {
			return err
		}
		responses, err := submissionResponses(tx, sub.SubmissionID)
		if err != nil {
			return err
		}
		if missing := MissingRequiredQuestions(questions, sub.SubmissionType, responses); len(missing) > 0 {
			return &ValidationError{
				QuestionID: missing[0].QuestionID,
				Message:    fmt.Sprintf("%d required question(s) not answered", len(missing)),
			}
		}

		now := time.Now()
		if err := applyTransition(tx, sub, to, actor.UserID, nil, map[string]interface{}{"submitted_at": now}); err != nil {
			return err
		}
		sub.SubmittedAt = &now

		coordinators, err := boardMembersWithRole(tx, sub.BoardID, models.BoardRoleCoordinator)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("Submission %s awaiting triage", sub.SubmissionNumber)
		message := fmt.Sprintf("Submission %s (version %d) has been submitted and is waiting for triage.", sub.SubmissionNumber, sub.Version)
		for _, m := range coordinators {
			if err := createNotification(tx, notifyInput{
				UserID:       m.UserID,
				Title:        subject,
				Message:      message,
				Type:         NotifyInfo,
				SubmissionID: sub.SubmissionID,
			}); err != nil {
				return err
			}
			mails = append(mails, mailTo(m.User, subject, message)...)
		}

		return writeAudit(tx, actor, string(EventSubmit), sub,
			map[string]interface{}{"status": sub.Status, "version": sub.Version},
			"Submission submitted for review")
	})
	if err != nil {
		return nil, err
	}

	sendMailBatch(mails)
	return sub, nil
}

// TriageAccept moves a submitted protocol into triage.
func (s *WorkflowService) TriageAccept(actor Actor, submissionID int, note string) (*models.Submission, error) {
	return s.triage(actor, submissionID, EventTriageAccept, note)
}

// TriageReturn sends a submitted protocol back to draft, typically with a
// note explaining what the submitter has to fix before resubmitting.
func (s *WorkflowService) TriageReturn(actor Actor, submissionID int, note string) (*models.Submission, error) {
	return s.triage(actor, submissionID, EventTriageReturn, note)
}

func (s *WorkflowService) triage(actor Actor, submissionID int, ev Event, note string) (*models.Submission, error) {
	var sub *models.Submission
	var mails []mailMessage

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		roles, err := boardRoles(tx, sub.BoardID, actor.UserID)
		if err != nil {
			return err
		}
		to, err := nextStatus(sub.SubmissionID, sub.Status, ev, actorContextFor(sub, roles, actor.UserID))
		if err != nil {
			return err
		}
		if err := applyTransition(tx, sub, to, actor.UserID, ptrString(note), nil); err != nil {
			return err
		}

		var subject, message, notifyType string
		if ev == EventTriageAccept {
			subject = fmt.Sprintf("Submission %s entered triage", sub.SubmissionNumber)
			message = fmt.Sprintf("Submission %s passed the initial check and entered triage.", sub.SubmissionNumber)
			notifyType = NotifyInfo
		} else {
			subject = fmt.Sprintf("Submission %s returned", sub.SubmissionNumber)
			message = fmt.Sprintf("Submission %s was returned to draft by the board coordinator.", sub.SubmissionNumber)
			if strings.TrimSpace(note) != "" {
				message += "\n\nCoordinator note: " + strings.TrimSpace(note)
			}
			notifyType = NotifyWarning
		}
		if err := createNotification(tx, notifyInput{
			UserID:       sub.SubmittedBy,
			Title:        subject,
			Message:      message,
			Type:         notifyType,
			SubmissionID: sub.SubmissionID,
		}); err != nil {
			return err
		}
		mails = append(mails, mailTo(sub.Submitter, subject, message)...)

		return writeAudit(tx, actor, string(ev), sub,
			map[string]interface{}{"status": sub.Status, "note": note},
			"Triage decision recorded")
	})
	if err != nil {
		return nil, err
	}

	sendMailBatch(mails)
	return sub, nil
}

// Resubmit starts the next version of a submission after a revision
// request. The version counter increments; the main reviewer, reviews
// and decision of the previous version stay attached to that version and
// no longer count as current.
func (s *WorkflowService) Resubmit(actor Actor, submissionID int) (*models.Submission, error) {
	var sub *models.Submission
	var mails []mailMessage

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		roles, err := boardRoles(tx, sub.BoardID, actor.UserID)
		if err != nil {
			return err
		}
		to, err := nextStatus(sub.SubmissionID, sub.Status, EventResubmit, actorContextFor(sub, roles, actor.UserID))
		if err != nil {
			return err
		}

		now := time.Now()
		newVersion := sub.Version + 1
		note := fmt.Sprintf("resubmission, version %d", newVersion)
		extra := map[string]interface{}{
			"version":          newVersion,
			"submitted_at":     now,
			"decided_at":       nil,
			"main_reviewer_id": nil,
		}
		if err := applyTransition(tx, sub, to, actor.UserID, &note, extra); err != nil {
			return err
		}
		sub.Version = newVersion
		sub.SubmittedAt = &now
		sub.DecidedAt = nil
		sub.MainReviewerID = nil

		coordinators, err := boardMembersWithRole(tx, sub.BoardID, models.BoardRoleCoordinator)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("Submission %s resubmitted", sub.SubmissionNumber)
		message := fmt.Sprintf("Submission %s came back as version %d and is waiting for triage.", sub.SubmissionNumber, newVersion)
		for _, m := range coordinators {
			if err := createNotification(tx, notifyInput{
				UserID:       m.UserID,
				Title:        subject,
				Message:      message,
				Type:         NotifyInfo,
				SubmissionID: sub.SubmissionID,
			}); err != nil {
				return err
			}
			mails = append(mails, mailTo(m.User, subject, message)...)
		}

		return writeAudit(tx, actor, string(EventResubmit), sub,
			map[string]interface{}{"version": newVersion},
			"Submission resubmitted after revision")
	})
	if err != nil {
		return nil, err
	}

	sendMailBatch(mails)
	return sub, nil
}

/* ==========================
   Shared transition plumbing
   ========================== */

func loadSubmission(tx *gorm.DB, submissionID int) (*models.Submission, error) {
	var sub models.Submission
	err := tx.Preload("Submitter").
		Where("submission_id = ? AND deleted_at IS NULL", submissionID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "submission", ID: submissionID}
		}
		return nil, err
	}
	return &sub, nil
}

// boardRoles returns the set of roles the user holds on the board.
func boardRoles(tx *gorm.DB, boardID, userID int) (map[models.BoardRole]bool, error) {
	var members []models.BoardMember
	if err := tx.Where("board_id = ? AND user_id = ?", boardID, userID).Find(&members).Error; err != nil {
		return nil, err
	}
	roles := make(map[models.BoardRole]bool, len(members))
	for _, m := range members {
		roles[m.Role] = true
	}
	return roles, nil
}

func actorContextFor(sub *models.Submission, roles map[models.BoardRole]bool, userID int) actorContext {
	return actorContext{
		UserID:         userID,
		IsSubmitter:    sub.SubmittedBy == userID,
		IsCoordinator:  roles[models.BoardRoleCoordinator],
		IsMainReviewer: sub.MainReviewerID != nil && *sub.MainReviewerID == userID,
	}
}

// applyTransition performs the compare-and-swap status change and writes
// the history row in one transaction step. extra carries additional
// submission columns updated in the same statement (submitted_at,
// version, main_reviewer_id, ...). When another request already bumped
// lock_version the statement matches zero rows, nothing is written and
// the caller gets a StaleStateConflictError.
func applyTransition(tx *gorm.DB, sub *models.Submission, to models.SubmissionStatus, actorID int, note *string, extra map[string]interface{}) error {
	now := time.Now()

	updates := make(map[string]interface{}, len(extra)+3)
	for k, v := range extra {
		updates[k] = v
	}
	updates["status"] = to
	updates["lock_version"] = sub.LockVersion + 1
	updates["updated_at"] = now

	result := tx.Model(&models.Submission{}).
		Where("submission_id = ? AND lock_version = ?", sub.SubmissionID, sub.LockVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &StaleStateConflictError{SubmissionID: sub.SubmissionID}
	}

	historyVersion := sub.Version
	if v, ok := extra["version"].(int); ok {
		historyVersion = v
	}
	from := sub.Status
	history := models.StatusHistory{
		SubmissionID: sub.SubmissionID,
		Version:      historyVersion,
		FromStatus:   &from,
		ToStatus:     to,
		Note:         note,
		ChangedBy:    actorID,
		CreatedAt:    now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return err
	}

	sub.Status = to
	sub.LockVersion++
	sub.UpdatedAt = now
	return nil
}

func writeAudit(tx *gorm.DB, actor Actor, action string, sub *models.Submission, values map[string]interface{}, description string) error {
	entityID := sub.SubmissionID
	audit := models.AuditLog{
		UserID:      actor.UserID,
		Action:      action,
		EntityType:  "submission",
		EntityID:    &entityID,
		Description: ptrString(description),
		IPAddress:   actor.IPAddress,
		CreatedAt:   time.Now(),
	}
	if sub.SubmissionNumber != "" {
		number := sub.SubmissionNumber
		audit.EntityNumber = &number
	}
	if len(values) > 0 {
		serialized, _ := json.Marshal(values)
		audit.NewValues = ptrString(string(serialized))
	}
	if ua := strings.TrimSpace(actor.UserAgent); ua != "" {
		audit.UserAgent = &ua
	}
	return tx.Create(&audit).Error
}

// boardQuestions loads a board's questionnaire with conditions.
// Soft-deleted questions are excluded here; active filtering happens in
// VisibleQuestions.
func boardQuestions(tx *gorm.DB, boardID int) ([]models.Question, error) {
	var questions []models.Question
	err := tx.
		Joins("JOIN board_sections ON board_sections.section_id = board_questions.section_id").
		Where("board_sections.board_id = ? AND board_questions.delete_at IS NULL", boardID).
		Preload("Conditions").
		Find(&questions).Error
	return questions, err
}

func submissionResponses(tx *gorm.DB, submissionID int) ([]models.Response, error) {
	var responses []models.Response
	err := tx.Where("submission_id = ?", submissionID).Find(&responses).Error
	return responses, err
}

func boardMembersWithRole(tx *gorm.DB, boardID int, role models.BoardRole) ([]models.BoardMember, error) {
	var members []models.BoardMember
	err := tx.Preload("User").
		Where("board_id = ? AND role = ?", boardID, role).
		Find(&members).Error
	return members, err
}

// currentAssignments returns the associate reviewer and statistician
// assignments of the submission's current version. The main reviewer is
// tracked on the submission row, not here.
func currentAssignments(tx *gorm.DB, sub *models.Submission) ([]models.ReviewerAssignment, error) {
	var assignments []models.ReviewerAssignment
	err := tx.Preload("Reviewer").
		Where("submission_id = ? AND version = ?", sub.SubmissionID, sub.Version).
		Find(&assignments).Error
	return assignments, err
}

func ptrString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
