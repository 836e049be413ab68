package services

import (
	"iter"
	"sort"
	"strings"

	"irb-review-api/models"
)

// AnswerSet maps question id to the current answer text. Questions with
// no saved answer are simply absent; lookups yield the empty string.
type AnswerSet map[int]string

// AnswerSetFromResponses flattens stored responses into an AnswerSet.
// Every saved answer participates in visibility evaluation, including
// unconfirmed AI-prefilled ones; confirmation only matters for the
// submit guard (see Response.CountsAsAnswered).
func AnswerSetFromResponses(responses []models.Response) AnswerSet {
	answers := make(AnswerSet, len(responses))
	for _, r := range responses {
		answers[r.QuestionID] = r.Answer
	}
	return answers
}

// evaluateCondition applies one visibility condition against the current
// answers. A missing answer reads as the empty string. Unknown operators
// evaluate true so a bad condition row shows the dependent question
// instead of silently hiding it.
func evaluateCondition(cond models.QuestionCondition, answers AnswerSet) bool {
	answer := answers[cond.DependsOnQuestionID]
	switch cond.Operator {
	case models.OperatorEquals:
		return answer == cond.CompareValue
	case models.OperatorNotEquals:
		return answer != cond.CompareValue
	case models.OperatorContains:
		return strings.Contains(answer, cond.CompareValue)
	case models.OperatorIsEmpty:
		return strings.TrimSpace(answer) == ""
	case models.OperatorIsNotEmpty:
		return strings.TrimSpace(answer) != ""
	default:
		return true
	}
}

// conditionsPass reports whether every condition of q holds against the
// answers. Vacuously true when q has no conditions.
func conditionsPass(q models.Question, answers AnswerSet) bool {
	for _, cond := range q.Conditions {
		if !evaluateCondition(cond, answers) {
			return false
		}
	}
	return true
}

// VisibleQuestions yields the questions that apply to the given
// submission type and whose conditions all pass against the answers,
// ordered by display order with question id breaking ties. The sequence
// is a pure function of its inputs and restartable: ranging over it
// twice yields the same questions in the same order.
func VisibleQuestions(questions []models.Question, submissionType string, answers AnswerSet) iter.Seq[models.Question] {
	candidates := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if q.IsActive && q.MatchesSubmissionType(submissionType) {
			candidates = append(candidates, q)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DisplayOrder != candidates[j].DisplayOrder {
			return candidates[i].DisplayOrder < candidates[j].DisplayOrder
		}
		return candidates[i].QuestionID < candidates[j].QuestionID
	})
	return func(yield func(models.Question) bool) {
		for _, q := range candidates {
			if !conditionsPass(q, answers) {
				continue
			}
			if !yield(q) {
				return
			}
		}
	}
}

// VisibleQuestionList materializes VisibleQuestions into a slice.
func VisibleQuestionList(questions []models.Question, submissionType string, answers AnswerSet) []models.Question {
	var visible []models.Question
	for q := range VisibleQuestions(questions, submissionType, answers) {
		visible = append(visible, q)
	}
	return visible
}

// MissingRequiredQuestions returns the required, currently visible
// questions that lack a countable answer. File-upload questions are
// satisfied by uploaded files, not responses, so they are skipped here.
// AI-prefilled answers the submitter has not confirmed or edited do not
// count.
func MissingRequiredQuestions(questions []models.Question, submissionType string, responses []models.Response) []models.Question {
	answered := make(map[int]bool, len(responses))
	for _, r := range responses {
		if r.CountsAsAnswered() {
			answered[r.QuestionID] = true
		}
	}
	answers := AnswerSetFromResponses(responses)

	var missing []models.Question
	for q := range VisibleQuestions(questions, submissionType, answers) {
		if !q.IsRequired || q.QuestionType == models.QuestionTypeFileUpload {
			continue
		}
		if !answered[q.QuestionID] {
			missing = append(missing, q)
		}
	}
	return missing
}
