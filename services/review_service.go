package services

import (
	"errors"
	"fmt"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// ReviewService records reviewer assessments. Submitting a review is not
// a status transition: the submission stays under_review and no history
// is written, so reviews never contend on the submission lock.
type ReviewService struct {
	db *gorm.DB
}

func NewReviewService(db *gorm.DB) *ReviewService {
	if db == nil {
		db = config.DB
	}
	return &ReviewService{db: db}
}

type ReviewInput struct {
	Recommendation      models.Recommendation `json:"recommendation" binding:"required"`
	Comments            string                `json:"comments"`
	FeedbackToSubmitter string                `json:"feedback_to_submitter"`
}

// SubmitReview upserts the acting reviewer's review of the submission's
// current version. A reviewer has at most one review per version; a
// second call replaces the content instead of duplicating the row.
func (s *ReviewService) SubmitReview(actor Actor, submissionID int, input ReviewInput) (*models.Review, error) {
	if !models.ValidRecommendation(input.Recommendation) {
		return nil, &ValidationError{Field: "recommendation", Message: fmt.Sprintf("unknown recommendation %q", input.Recommendation)}
	}

	var review *models.Review
	var mails []mailMessage

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.Status != models.StatusUnderReview {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        "submit_review",
				Reason:       "reviews are only accepted while the submission is under review",
			}
		}

		role, err := reviewerRoleFor(tx, sub, actor.UserID)
		if err != nil {
			return err
		}

		now := time.Now()
		var existing models.Review
		err = tx.Where("submission_id = ? AND reviewer_id = ? AND version = ?", sub.SubmissionID, actor.UserID, sub.Version).
			First(&existing).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"recommendation":        input.Recommendation,
				"comments":              ptrString(input.Comments),
				"feedback_to_submitter": ptrString(input.FeedbackToSubmitter),
				"reviewer_role":         role,
				"updated_at":            now,
			}
			if err := tx.Model(&models.Review{}).Where("review_id = ?", existing.ReviewID).Updates(updates).Error; err != nil {
				return err
			}
			existing.Recommendation = input.Recommendation
			existing.Comments = ptrString(input.Comments)
			existing.FeedbackToSubmitter = ptrString(input.FeedbackToSubmitter)
			existing.ReviewerRole = role
			existing.UpdatedAt = now
			review = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := models.Review{
				SubmissionID:        sub.SubmissionID,
				ReviewerID:          actor.UserID,
				ReviewerRole:        role,
				Version:             sub.Version,
				Recommendation:      input.Recommendation,
				Comments:            ptrString(input.Comments),
				FeedbackToSubmitter: ptrString(input.FeedbackToSubmitter),
				CompletedAt:         now,
				UpdatedAt:           now,
			}
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
			review = &fresh
		default:
			return err
		}

		// Tell the main reviewer an associate's assessment arrived.
		if sub.MainReviewerID != nil && *sub.MainReviewerID != actor.UserID {
			subject := fmt.Sprintf("Review received for %s", sub.SubmissionNumber)
			message := fmt.Sprintf("A %s review was submitted for %s (version %d).", role, sub.SubmissionNumber, sub.Version)
			if err := createNotification(tx, notifyInput{
				UserID:       *sub.MainReviewerID,
				Title:        subject,
				Message:      message,
				Type:         NotifyInfo,
				SubmissionID: sub.SubmissionID,
			}); err != nil {
				return err
			}
			var main models.User
			if err := tx.Where("user_id = ?", *sub.MainReviewerID).First(&main).Error; err == nil {
				mails = append(mails, mailTo(&main, subject, message)...)
			}
		}

		return writeAudit(tx, actor, "submit_review", sub,
			map[string]interface{}{"recommendation": input.Recommendation, "version": sub.Version},
			"Review submitted")
	})
	if err != nil {
		return nil, err
	}

	sendMailBatch(mails)
	return review, nil
}

// reviewerRoleFor resolves the acting user's reviewing role on the
// submission's current version, or rejects callers outside the assigned
// set.
func reviewerRoleFor(tx *gorm.DB, sub *models.Submission, userID int) (models.BoardRole, error) {
	if sub.MainReviewerID != nil && *sub.MainReviewerID == userID {
		return models.BoardRoleMainReviewer, nil
	}
	var assignment models.ReviewerAssignment
	err := tx.Where("submission_id = ? AND reviewer_id = ? AND version = ?", sub.SubmissionID, userID, sub.Version).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &AuthorizationError{
				Action: "submit_review",
				UserID: userID,
				Reason: "not assigned to this submission",
			}
		}
		return "", err
	}
	return assignment.Role, nil
}

// VisibleReviews returns the current version's reviews the acting user
// may see. Coordinators and the main reviewer see everything; an
// assigned reviewer sees only their own review; the submitter sees the
// feedback fields once a decision exists, with reviewer identities and
// internal comments removed.
func (s *ReviewService) VisibleReviews(actor Actor, submissionID int) ([]models.Review, error) {
	var visible []models.Review

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		roles, err := boardRoles(tx, sub.BoardID, actor.UserID)
		if err != nil {
			return err
		}
		actorCtx := actorContextFor(sub, roles, actor.UserID)

		var reviews []models.Review
		query := tx.Preload("Reviewer").
			Where("submission_id = ? AND version = ?", sub.SubmissionID, sub.Version).
			Order("completed_at ASC")

		switch {
		case actorCtx.IsCoordinator || actorCtx.IsMainReviewer:
			if err := query.Find(&reviews).Error; err != nil {
				return err
			}
			visible = reviews
		case isAssignedReviewer(tx, sub, actor.UserID):
			if err := query.Where("reviewer_id = ?", actor.UserID).Find(&reviews).Error; err != nil {
				return err
			}
			visible = reviews
		case actorCtx.IsSubmitter:
			if sub.DecidedAt == nil {
				visible = nil
				return nil
			}
			if err := query.Find(&reviews).Error; err != nil {
				return err
			}
			for _, r := range reviews {
				if r.FeedbackToSubmitter == nil {
					continue
				}
				// Blind copy: the submitter sees feedback, never who
				// wrote it or the internal comments.
				visible = append(visible, models.Review{
					SubmissionID:        r.SubmissionID,
					ReviewerRole:        r.ReviewerRole,
					Version:             r.Version,
					Recommendation:      r.Recommendation,
					FeedbackToSubmitter: r.FeedbackToSubmitter,
					CompletedAt:         r.CompletedAt,
					UpdatedAt:           r.UpdatedAt,
				})
			}
		default:
			return &AuthorizationError{Action: "list_reviews", UserID: actor.UserID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visible, nil
}

func isAssignedReviewer(tx *gorm.DB, sub *models.Submission, userID int) bool {
	var count int64
	tx.Model(&models.ReviewerAssignment{}).
		Where("submission_id = ? AND reviewer_id = ? AND version = ?", sub.SubmissionID, userID, sub.Version).
		Count(&count)
	return count > 0
}
