package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// DecisionService records the board's decision on a submission version
// and settles the submission in its decision-dependent final status.
type DecisionService struct {
	db *gorm.DB
}

func NewDecisionService(db *gorm.DB) *DecisionService {
	if db == nil {
		db = config.DB
	}
	return &DecisionService{db: db}
}

type DecisionInput struct {
	Decision   models.Recommendation `json:"decision" binding:"required"`
	Rationale  string                `json:"rationale"`
	Letter     string                `json:"letter"`
	Conditions string                `json:"conditions"`
}

// RecordDecision creates the immutable decision row for the current
// version and drives the submission through decision_made into the final
// status derived from the decision value. Both hops are written to the
// history inside one transaction; a decision may be recorded before
// every assigned reviewer has submitted.
func (s *DecisionService) RecordDecision(actor Actor, submissionID int, input DecisionInput) (*models.Submission, *models.Decision, error) {
	if !models.ValidRecommendation(input.Decision) {
		return nil, nil, &ValidationError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", input.Decision)}
	}

	var sub *models.Submission
	var decision *models.Decision
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
		to, err := nextStatus(sub.SubmissionID, sub.Status, EventRecordDecision, actorContextFor(sub, roles, actor.UserID))
		if err != nil {
			return err
		}

		// A version has at most one decision.
		var existing models.Decision
		err = tx.Where("submission_id = ? AND version = ?", sub.SubmissionID, sub.Version).First(&existing).Error
		if err == nil {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        string(EventRecordDecision),
				Reason:       fmt.Sprintf("version %d already has a decision", sub.Version),
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		if err := applyTransition(tx, sub, to, actor.UserID, ptrString(input.Rationale), map[string]interface{}{"decided_at": now}); err != nil {
			return err
		}
		sub.DecidedAt = &now

		row := models.Decision{
			SubmissionID: sub.SubmissionID,
			Version:      sub.Version,
			Decision:     input.Decision,
			Rationale:    ptrString(input.Rationale),
			Letter:       ptrString(input.Letter),
			Conditions:   ptrString(input.Conditions),
			DecidedBy:    actor.UserID,
			DecidedAt:    now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		decision = &row

		final := models.StatusAfterDecision(input.Decision)
		note := fmt.Sprintf("decision:%s", input.Decision)
		if err := applyTransition(tx, sub, final, actor.UserID, &note, nil); err != nil {
			return err
		}

		subject, message, notifyType := decisionNotice(sub, input)
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

		return writeAudit(tx, actor, string(EventRecordDecision), sub,
			map[string]interface{}{"decision": input.Decision, "version": sub.Version, "status": sub.Status},
			"Board decision recorded")
	})
	if err != nil {
		return nil, nil, err
	}

	sendMailBatch(mails)
	return sub, decision, nil
}

func decisionNotice(sub *models.Submission, input DecisionInput) (subject, message, notifyType string) {
	switch input.Decision {
	case models.RecommendationAccept:
		subject = fmt.Sprintf("Submission %s accepted", sub.SubmissionNumber)
		notifyType = NotifySuccess
	case models.RecommendationDecline:
		subject = fmt.Sprintf("Submission %s declined", sub.SubmissionNumber)
		notifyType = NotifyError
	default:
		subject = fmt.Sprintf("Revision requested for %s", sub.SubmissionNumber)
		notifyType = NotifyWarning
	}

	switch {
	case strings.TrimSpace(input.Letter) != "":
		message = strings.TrimSpace(input.Letter)
	case strings.TrimSpace(input.Rationale) != "":
		message = strings.TrimSpace(input.Rationale)
	default:
		message = fmt.Sprintf("The board recorded its decision on submission %s (version %d): %s.",
			sub.SubmissionNumber, sub.Version, input.Decision)
	}
	if strings.TrimSpace(input.Conditions) != "" {
		message += "\n\nConditions: " + strings.TrimSpace(input.Conditions)
	}
	return subject, message, notifyType
}

// CurrentDecision returns the decision of the submission's current
// version, or a NotFoundError when none has been recorded yet.
func (s *DecisionService) CurrentDecision(submissionID int) (*models.Decision, error) {
	var sub *models.Submission
	var decision models.Decision

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		err = tx.Preload("Decider").
			Where("submission_id = ? AND version = ?", sub.SubmissionID, sub.Version).
			First(&decision).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "decision", ID: submissionID}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &decision, nil
}
