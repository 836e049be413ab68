package services

import (
	"errors"
	"fmt"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// ResponseService saves and confirms questionnaire answers. Responses
// are per-question writes keyed by (submission_id, question_id); they
// never touch the submission's lock version, so drafting proceeds
// concurrently with anything else.
type ResponseService struct {
	db *gorm.DB
}

func NewResponseService(db *gorm.DB) *ResponseService {
	if db == nil {
		db = config.DB
	}
	return &ResponseService{db: db}
}

type ResponseInput struct {
	QuestionID int    `json:"question_id" binding:"required"`
	Answer     string `json:"answer"`
}

// SaveResponse upserts a single answer.
func (s *ResponseService) SaveResponse(actor Actor, submissionID int, input ResponseInput) (*models.Response, error) {
	saved, err := s.SaveResponses(actor, submissionID, []ResponseInput{input})
	if err != nil {
		return nil, err
	}
	return &saved[0], nil
}

// SaveResponses upserts a batch of answers in one transaction. Answers
// are validated against the question's declared type; saving marks the
// row user-authored, clearing any AI prefill provenance. All answers
// save or none do.
func (s *ResponseService) SaveResponses(actor Actor, submissionID int, inputs []ResponseInput) ([]models.Response, error) {
	if len(inputs) == 0 {
		return nil, &ValidationError{Field: "responses", Message: "no answers provided"}
	}

	var saved []models.Response
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != actor.UserID {
			return &AuthorizationError{Action: "save_response", UserID: actor.UserID, Reason: "only the submitter may edit answers"}
		}
		if !sub.IsEditable() {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        "save_response",
				Reason:       "answers can only change while drafting or revising",
			}
		}

		questions, err := boardQuestions(tx, sub.BoardID)
		if err != nil {
			return err
		}
		byID := make(map[int]models.Question, len(questions))
		for _, q := range questions {
			byID[q.QuestionID] = q
		}

		now := time.Now()
		for _, input := range inputs {
			q, ok := byID[input.QuestionID]
			if !ok {
				return &ValidationError{QuestionID: input.QuestionID, Message: "question does not belong to this submission's board"}
			}
			if !q.IsActive {
				return &ValidationError{QuestionID: q.QuestionID, Message: "question is no longer active"}
			}
			if !q.MatchesSubmissionType(sub.SubmissionType) {
				return &ValidationError{QuestionID: q.QuestionID, Message: fmt.Sprintf("question does not apply to %s submissions", sub.SubmissionType)}
			}

			value, err := ParseAnswer(q, input.Answer)
			if err != nil {
				return err
			}

			row, err := upsertResponse(tx, sub.SubmissionID, q.QuestionID, value.StorageString(), now)
			if err != nil {
				return err
			}
			saved = append(saved, *row)
		}

		return writeAudit(tx, actor, "save_responses", sub,
			map[string]interface{}{"answers": len(saved)},
			"Questionnaire answers saved")
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// upsertResponse writes a user-authored answer, replacing any earlier
// answer including AI-prefilled ones.
func upsertResponse(tx *gorm.DB, submissionID, questionID int, answer string, now time.Time) (*models.Response, error) {
	var existing models.Response
	err := tx.Where("submission_id = ? AND question_id = ?", submissionID, questionID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"answer":         answer,
			"ai_prefilled":   false,
			"user_confirmed": true,
			"updated_at":     now,
		}
		if err := tx.Model(&models.Response{}).Where("response_id = ?", existing.ResponseID).Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.Answer = answer
		existing.AIPrefilled = false
		existing.UserConfirmed = true
		existing.UpdatedAt = now
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		fresh := models.Response{
			SubmissionID:  submissionID,
			QuestionID:    questionID,
			Answer:        answer,
			AIPrefilled:   false,
			UserConfirmed: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return nil, err
		}
		return &fresh, nil
	default:
		return nil, err
	}
}

// ConfirmResponse marks an AI-prefilled answer as reviewed-and-kept by
// the submitter. Confirming keeps the AI provenance flag; only then does
// the answer count toward the submit guard. Confirming an already
// user-authored answer is a no-op.
func (s *ResponseService) ConfirmResponse(actor Actor, submissionID, questionID int) (*models.Response, error) {
	var confirmed *models.Response

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != actor.UserID {
			return &AuthorizationError{Action: "confirm_response", UserID: actor.UserID, Reason: "only the submitter may confirm answers"}
		}
		if !sub.IsEditable() {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        "confirm_response",
				Reason:       "answers can only change while drafting or revising",
			}
		}

		var response models.Response
		err = tx.Where("submission_id = ? AND question_id = ?", sub.SubmissionID, questionID).First(&response).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "response", ID: questionID}
			}
			return err
		}

		if !response.UserConfirmed {
			now := time.Now()
			if err := tx.Model(&models.Response{}).
				Where("response_id = ?", response.ResponseID).
				Updates(map[string]interface{}{"user_confirmed": true, "updated_at": now}).Error; err != nil {
				return err
			}
			response.UserConfirmed = true
			response.UpdatedAt = now
		}
		confirmed = &response

		return writeAudit(tx, actor, "confirm_response", sub,
			map[string]interface{}{"question_id": questionID},
			"AI-prefilled answer confirmed")
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Questionnaire returns the currently visible questions and all saved
// responses for a submission, for rendering the dynamic form.
func (s *ResponseService) Questionnaire(actor Actor, submissionID int) ([]models.Question, []models.Response, error) {
	var visible []models.Question
	var responses []models.Response

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		ok, err := canReadSubmission(tx, sub, actor.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return &AuthorizationError{Action: "read_questionnaire", UserID: actor.UserID}
		}

		questions, err := boardQuestions(tx, sub.BoardID)
		if err != nil {
			return err
		}
		responses, err = submissionResponses(tx, sub.SubmissionID)
		if err != nil {
			return err
		}
		visible = VisibleQuestionList(questions, sub.SubmissionType, AnswerSetFromResponses(responses))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return visible, responses, nil
}

// CanReadSubmission reports whether the user may see the submission at
// all. Platform admins are not implicitly included; they go through the
// same participant check as everyone else.
func CanReadSubmission(db *gorm.DB, sub *models.Submission, userID int) (bool, error) {
	return canReadSubmission(db, sub, userID)
}

// canReadSubmission reports whether the user participates in the
// submission: the submitter, a board coordinator, the current main
// reviewer, or a reviewer assigned to the current version.
func canReadSubmission(tx *gorm.DB, sub *models.Submission, userID int) (bool, error) {
	if sub.SubmittedBy == userID {
		return true, nil
	}
	if sub.MainReviewerID != nil && *sub.MainReviewerID == userID {
		return true, nil
	}
	roles, err := boardRoles(tx, sub.BoardID, userID)
	if err != nil {
		return false, err
	}
	if roles[models.BoardRoleCoordinator] {
		return true, nil
	}
	return isAssignedReviewer(tx, sub, userID), nil
}
