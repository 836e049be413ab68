package services

import (
	"errors"
	"fmt"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// AssignmentService attaches reviewers to a submission: exactly one main
// reviewer, then any number of associate reviewers and statisticians.
type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	if db == nil {
		db = config.DB
	}
	return &AssignmentService{db: db}
}

// AssignMain sets the submission's main reviewer and moves it from
// in_triage to assigned_to_main. The target user must hold the
// main_reviewer role on the submission's board.
func (s *AssignmentService) AssignMain(actor Actor, submissionID, reviewerID int) (*models.Submission, error) {
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
		to, err := nextStatus(sub.SubmissionID, sub.Status, EventAssignMain, actorContextFor(sub, roles, actor.UserID))
		if err != nil {
			return err
		}

		reviewerRoles, err := boardRoles(tx, sub.BoardID, reviewerID)
		if err != nil {
			return err
		}
		if !reviewerRoles[models.BoardRoleMainReviewer] {
			return &ValidationError{Field: "reviewer_id", Message: fmt.Sprintf("user %d is not a main reviewer of this board", reviewerID)}
		}

		var reviewer models.User
		if err := tx.Where("user_id = ? AND delete_at IS NULL", reviewerID).First(&reviewer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "user", ID: reviewerID}
			}
			return err
		}

		note := fmt.Sprintf("main reviewer: %s", reviewer.FullName())
		extra := map[string]interface{}{"main_reviewer_id": reviewerID}
		if err := applyTransition(tx, sub, to, actor.UserID, &note, extra); err != nil {
			return err
		}
		sub.MainReviewerID = &reviewerID

		subject := fmt.Sprintf("Assigned as main reviewer for %s", sub.SubmissionNumber)
		message := fmt.Sprintf("You are the main reviewer for submission %s (version %d).", sub.SubmissionNumber, sub.Version)
		if err := createNotification(tx, notifyInput{
			UserID:       reviewerID,
			Title:        subject,
			Message:      message,
			Type:         NotifyInfo,
			SubmissionID: sub.SubmissionID,
		}); err != nil {
			return err
		}
		mails = append(mails, mailTo(&reviewer, subject, message)...)

		return writeAudit(tx, actor, string(EventAssignMain), sub,
			map[string]interface{}{"main_reviewer_id": reviewerID},
			"Main reviewer assigned")
	})
	if err != nil {
		return nil, err
	}

	sendMailBatch(mails)
	return sub, nil
}

// AssignAssociates adds associate reviewers or statisticians. The first
// call moves the submission from assigned_to_main to under_review; later
// calls while under_review add reviewers without a transition. Ids are
// de-duplicated, the main reviewer is never added as an associate, and
// reviewers already assigned to the current version are skipped.
func (s *AssignmentService) AssignAssociates(actor Actor, submissionID int, reviewerIDs []int) (*models.Submission, []models.ReviewerAssignment, error) {
	var sub *models.Submission
	var created []models.ReviewerAssignment
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
		actorCtx := actorContextFor(sub, roles, actor.UserID)

		if sub.Status == models.StatusUnderReview {
			// Additive call: no transition, but the lock version still
			// moves so a concurrent decision cannot interleave.
			if !actorCtx.IsCoordinator && !actorCtx.IsMainReviewer {
				return &AuthorizationError{Action: string(EventAssignAssociates), UserID: actor.UserID}
			}
			if err := bumpLockVersion(tx, sub); err != nil {
				return err
			}
		} else {
			to, err := nextStatus(sub.SubmissionID, sub.Status, EventAssignAssociates, actorCtx)
			if err != nil {
				return err
			}
			if sub.MainReviewerID == nil {
				return &InvalidStateTransitionError{
					SubmissionID: sub.SubmissionID,
					From:         sub.Status,
					Event:        string(EventAssignAssociates),
					Reason:       "no main reviewer assigned",
				}
			}
			if err := applyTransition(tx, sub, to, actor.UserID, nil, nil); err != nil {
				return err
			}
		}

		existing, err := currentAssignments(tx, sub)
		if err != nil {
			return err
		}
		assigned := make(map[int]bool, len(existing)+1)
		for _, a := range existing {
			assigned[a.ReviewerID] = true
		}
		if sub.MainReviewerID != nil {
			assigned[*sub.MainReviewerID] = true
		}

		now := time.Now()
		for _, reviewerID := range dedupeIDs(reviewerIDs) {
			if assigned[reviewerID] {
				continue
			}
			reviewerRoles, err := boardRoles(tx, sub.BoardID, reviewerID)
			if err != nil {
				return err
			}
			role := models.BoardRoleAssociateReviewer
			switch {
			case reviewerRoles[models.BoardRoleAssociateReviewer]:
			case reviewerRoles[models.BoardRoleStatistician]:
				role = models.BoardRoleStatistician
			default:
				return &ValidationError{Field: "reviewer_ids", Message: fmt.Sprintf("user %d is not an associate reviewer or statistician of this board", reviewerID)}
			}

			assignment := models.ReviewerAssignment{
				SubmissionID: sub.SubmissionID,
				ReviewerID:   reviewerID,
				Role:         role,
				Version:      sub.Version,
				AssignedBy:   actor.UserID,
				AssignedAt:   now,
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
			assigned[reviewerID] = true
			created = append(created, assignment)

			subject := fmt.Sprintf("Assigned to review %s", sub.SubmissionNumber)
			message := fmt.Sprintf("You have been assigned as %s for submission %s (version %d).", role, sub.SubmissionNumber, sub.Version)
			if err := createNotification(tx, notifyInput{
				UserID:       reviewerID,
				Title:        subject,
				Message:      message,
				Type:         NotifyInfo,
				SubmissionID: sub.SubmissionID,
			}); err != nil {
				return err
			}
			var reviewer models.User
			if err := tx.Where("user_id = ?", reviewerID).First(&reviewer).Error; err == nil {
				mails = append(mails, mailTo(&reviewer, subject, message)...)
			}
		}

		ids := make([]int, 0, len(created))
		for _, a := range created {
			ids = append(ids, a.ReviewerID)
		}
		return writeAudit(tx, actor, string(EventAssignAssociates), sub,
			map[string]interface{}{"reviewer_ids": ids, "status": sub.Status},
			"Associate reviewers assigned")
	})
	if err != nil {
		return nil, nil, err
	}

	sendMailBatch(mails)
	return sub, created, nil
}

// bumpLockVersion serializes a non-transition mutation of the assigned
// set against concurrent transitions.
func bumpLockVersion(tx *gorm.DB, sub *models.Submission) error {
	result := tx.Model(&models.Submission{}).
		Where("submission_id = ? AND lock_version = ?", sub.SubmissionID, sub.LockVersion).
		Updates(map[string]interface{}{
			"lock_version": sub.LockVersion + 1,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &StaleStateConflictError{SubmissionID: sub.SubmissionID}
	}
	sub.LockVersion++
	return nil
}

func dedupeIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
