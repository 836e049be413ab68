package services

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ReminderService nudges reviewers whose submissions sit under review
// past the configured idle threshold. One reminder per submission per
// interval; last_reminded_at keeps the sweep idempotent across restarts.
type ReminderService struct {
	db   *gorm.DB
	cron *cron.Cron
}

func NewReminderService(db *gorm.DB) *ReminderService {
	if db == nil {
		db = config.DB
	}
	return &ReminderService{db: db}
}

// Start registers the sweep with the scheduler. REVIEW_REMINDER_CRON
// sets the cron spec (default daily at 08:00, "off" disables the job);
// REVIEW_REMINDER_AFTER_DAYS sets the idle threshold.
func (s *ReminderService) Start() error {
	spec := os.Getenv("REVIEW_REMINDER_CRON")
	if spec == "" {
		spec = "0 8 * * *"
	}
	if strings.EqualFold(spec, "off") {
		log.Println("review reminder scheduler disabled")
		return nil
	}

	s.cron = cron.New(cron.WithLocation(time.Local))
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.SweepOnce(); err != nil {
			log.Printf("review reminder sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid REVIEW_REMINDER_CRON %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("review reminder scheduler started (spec=%q)", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *ReminderService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// SweepOnce finds submissions under review that have been idle past the
// threshold and reminds every assigned reviewer who has not completed a
// review of the current version.
func (s *ReminderService) SweepOnce() error {
	days := reminderAfterDays()
	cutoff := time.Now().AddDate(0, 0, -days)

	var due []models.Submission
	err := s.db.
		Where("status = ? AND deleted_at IS NULL", models.StatusUnderReview).
		Where("updated_at <= ?", cutoff).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", cutoff).
		Find(&due).Error
	if err != nil {
		return err
	}

	for i := range due {
		if err := s.remind(&due[i]); err != nil {
			log.Printf("reminder for submission %d failed: %v", due[i].SubmissionID, err)
		}
	}
	return nil
}

func (s *ReminderService) remind(stale *models.Submission) error {
	var mails []mailMessage

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, stale.SubmissionID)
		if err != nil {
			return err
		}
		// The sweep list is a snapshot; skip anything that moved on.
		if sub.Status != models.StatusUnderReview {
			return nil
		}

		pending, err := pendingReviewers(tx, sub)
		if err != nil {
			return err
		}

		subject := fmt.Sprintf("Reminder: review pending for %s", sub.SubmissionNumber)
		message := fmt.Sprintf("Submission %s (version %d) is waiting for your review.", sub.SubmissionNumber, sub.Version)
		for _, reviewerID := range pending {
			if err := createNotification(tx, notifyInput{
				UserID:       reviewerID,
				Title:        subject,
				Message:      message,
				Type:         NotifyWarning,
				SubmissionID: sub.SubmissionID,
			}); err != nil {
				return err
			}
			var reviewer models.User
			if err := tx.Where("user_id = ?", reviewerID).First(&reviewer).Error; err == nil {
				mails = append(mails, mailTo(&reviewer, subject, message)...)
			}
		}

		return tx.Model(&models.Submission{}).
			Where("submission_id = ?", sub.SubmissionID).
			Update("last_reminded_at", time.Now()).Error
	})
	if err != nil {
		return err
	}

	sendMailBatch(mails)
	return nil
}

// pendingReviewers returns the reviewers of the current version without
// a completed review: the main reviewer first, then assignees.
func pendingReviewers(tx *gorm.DB, sub *models.Submission) ([]int, error) {
	var reviews []models.Review
	if err := tx.Where("submission_id = ? AND version = ?", sub.SubmissionID, sub.Version).Find(&reviews).Error; err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(reviews))
	for _, r := range reviews {
		done[r.ReviewerID] = true
	}

	var pending []int
	if sub.MainReviewerID != nil && !done[*sub.MainReviewerID] {
		pending = append(pending, *sub.MainReviewerID)
	}
	assignments, err := currentAssignments(tx, sub)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if !done[a.ReviewerID] {
			pending = append(pending, a.ReviewerID)
		}
	}
	return pending, nil
}

func reminderAfterDays() int {
	days, _ := strconv.Atoi(os.Getenv("REVIEW_REMINDER_AFTER_DAYS"))
	if days <= 0 {
		days = 7
	}
	return days
}
