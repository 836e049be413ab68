package services

import (
	"testing"

	"irb-review-api/models"
)

func activeQuestion(id, order int, filter string) models.Question {
	return models.Question{
		QuestionID:           id,
		QuestionType:         models.QuestionTypeText,
		DisplayOrder:         order,
		IsActive:             true,
		SubmissionTypeFilter: filter,
	}
}

func condition(questionID, dependsOn int, op models.ConditionOperator, value string) models.QuestionCondition {
	return models.QuestionCondition{
		QuestionID:          questionID,
		DependsOnQuestionID: dependsOn,
		Operator:            op,
		CompareValue:        value,
	}
}

func visibleIDs(questions []models.Question, submissionType string, answers AnswerSet) []int {
	var ids []int
	for _, q := range VisibleQuestionList(questions, submissionType, answers) {
		ids = append(ids, q.QuestionID)
	}
	return ids
}

func TestVisibleQuestionsOrdersAndFilters(t *testing.T) {
	inactive := activeQuestion(1, 0, models.FilterBoth)
	inactive.IsActive = false

	questions := []models.Question{
		inactive,
		activeQuestion(2, 2, models.FilterBoth),
		activeQuestion(3, 1, models.FilterExempt),
		activeQuestion(4, 1, models.FilterBoth),
		activeQuestion(5, 2, models.FilterStandard),
	}

	got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{})
	want := []int{4, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("visible for standard: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visible for standard: got %v want %v", got, want)
		}
	}

	got = visibleIDs(questions, models.SubmissionTypeExempt, AnswerSet{})
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("visible for exempt: got %v want [3 4]", got)
	}
}

func TestVisibleQuestionsTiebreakOnID(t *testing.T) {
	questions := []models.Question{
		activeQuestion(9, 1, models.FilterBoth),
		activeQuestion(3, 1, models.FilterBoth),
	}
	got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{})
	if len(got) != 2 || got[0] != 3 || got[1] != 9 {
		t.Fatalf("got %v, want ids ascending within equal display order", got)
	}
}

func TestEvaluateConditionOperators(t *testing.T) {
	answers := AnswerSet{1: "Yes", 2: "  ", 3: "multi-site study"}

	cases := []struct {
		name string
		cond models.QuestionCondition
		want bool
	}{
		{"equals match", condition(10, 1, models.OperatorEquals, "Yes"), true},
		{"equals miss", condition(10, 1, models.OperatorEquals, "No"), false},
		{"not_equals", condition(10, 1, models.OperatorNotEquals, "No"), true},
		{"contains", condition(10, 3, models.OperatorContains, "multi-site"), true},
		{"contains miss", condition(10, 3, models.OperatorContains, "single"), false},
		{"is_empty on whitespace", condition(10, 2, models.OperatorIsEmpty, ""), true},
		{"is_empty on answered", condition(10, 1, models.OperatorIsEmpty, ""), false},
		{"is_not_empty", condition(10, 1, models.OperatorIsNotEmpty, ""), true},
		{"missing answer reads empty", condition(10, 99, models.OperatorIsEmpty, ""), true},
		{"unknown operator fails open", condition(10, 1, models.ConditionOperator("matches"), "x"), true},
	}

	for _, tc := range cases {
		if got := evaluateCondition(tc.cond, answers); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestVisibleQuestionsAllConditionsMustPass(t *testing.T) {
	gated := activeQuestion(2, 2, models.FilterBoth)
	gated.Conditions = []models.QuestionCondition{
		condition(2, 1, models.OperatorEquals, "Yes"),
		condition(2, 1, models.OperatorContains, "e"),
	}
	questions := []models.Question{activeQuestion(1, 1, models.FilterBoth), gated}

	if got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{1: "Yes"}); len(got) != 2 {
		t.Fatalf("both conditions pass: got %v want [1 2]", got)
	}
	// "eh" passes contains("e") but fails equals("Yes"): AND semantics.
	if got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{1: "eh"}); len(got) != 1 {
		t.Fatalf("one condition fails: got %v want [1]", got)
	}
}

func TestVisibleQuestionsCascade(t *testing.T) {
	q1 := activeQuestion(1, 1, models.FilterBoth)
	q1.QuestionType = models.QuestionTypeRadio

	q2 := activeQuestion(2, 2, models.FilterBoth)
	q2.Conditions = []models.QuestionCondition{condition(2, 1, models.OperatorEquals, "Yes")}

	q3 := activeQuestion(3, 3, models.FilterBoth)
	q3.Conditions = []models.QuestionCondition{condition(3, 2, models.OperatorIsNotEmpty, "")}

	questions := []models.Question{q1, q2, q3}

	if got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{}); len(got) != 1 || got[0] != 1 {
		t.Fatalf("no answers: got %v want [1]", got)
	}
	if got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{1: "Yes"}); len(got) != 2 {
		t.Fatalf("q1 answered: got %v want [1 2]", got)
	}
	got := visibleIDs(questions, models.SubmissionTypeStandard, AnswerSet{1: "Yes", 2: "200 adults"})
	if len(got) != 3 {
		t.Fatalf("chain answered: got %v want [1 2 3]", got)
	}
}

func TestVisibleQuestionsSequenceIsRestartable(t *testing.T) {
	questions := []models.Question{
		activeQuestion(1, 1, models.FilterBoth),
		activeQuestion(2, 2, models.FilterBoth),
	}
	seq := VisibleQuestions(questions, models.SubmissionTypeStandard, AnswerSet{})

	for pass := 0; pass < 2; pass++ {
		var ids []int
		for q := range seq {
			ids = append(ids, q.QuestionID)
		}
		if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
			t.Fatalf("pass %d: got %v want [1 2]", pass, ids)
		}
	}
}

func TestMissingRequiredQuestions(t *testing.T) {
	answered := activeQuestion(1, 1, models.FilterBoth)
	answered.IsRequired = true

	unanswered := activeQuestion(2, 2, models.FilterBoth)
	unanswered.IsRequired = true

	optional := activeQuestion(3, 3, models.FilterBoth)

	hidden := activeQuestion(4, 4, models.FilterBoth)
	hidden.IsRequired = true
	hidden.Conditions = []models.QuestionCondition{condition(4, 1, models.OperatorEquals, "never")}

	upload := activeQuestion(5, 5, models.FilterBoth)
	upload.IsRequired = true
	upload.QuestionType = models.QuestionTypeFileUpload

	questions := []models.Question{answered, unanswered, optional, hidden, upload}
	responses := []models.Response{
		{QuestionID: 1, Answer: "We compare consent comprehension across formats."},
	}

	missing := MissingRequiredQuestions(questions, models.SubmissionTypeStandard, responses)
	if len(missing) != 1 || missing[0].QuestionID != 2 {
		t.Fatalf("got %d missing (first %v), want only question 2", len(missing), missing)
	}
}

func TestMissingRequiredRejectsUnconfirmedPrefill(t *testing.T) {
	q := activeQuestion(1, 1, models.FilterBoth)
	q.IsRequired = true
	questions := []models.Question{q}

	drafted := []models.Response{{QuestionID: 1, Answer: "drafted text", AIPrefilled: true}}
	if missing := MissingRequiredQuestions(questions, models.SubmissionTypeStandard, drafted); len(missing) != 1 {
		t.Fatalf("unconfirmed AI draft counted as answered")
	}

	confirmed := []models.Response{{QuestionID: 1, Answer: "drafted text", AIPrefilled: true, UserConfirmed: true}}
	if missing := MissingRequiredQuestions(questions, models.SubmissionTypeStandard, confirmed); len(missing) != 0 {
		t.Fatalf("confirmed AI draft still missing: %v", missing)
	}

	empty := []models.Response{{QuestionID: 1, Answer: ""}}
	if missing := MissingRequiredQuestions(questions, models.SubmissionTypeStandard, empty); len(missing) != 1 {
		t.Fatalf("empty answer counted as answered")
	}
}

// An unconfirmed AI draft does not satisfy the submit guard, but its text
// still drives visibility: a question revealed by a drafted answer shows
// up (and can itself be required).
func TestPrefilledAnswersStillDriveVisibility(t *testing.T) {
	q1 := activeQuestion(1, 1, models.FilterBoth)
	q1.IsRequired = true

	q2 := activeQuestion(2, 2, models.FilterBoth)
	q2.IsRequired = true
	q2.Conditions = []models.QuestionCondition{condition(2, 1, models.OperatorEquals, "Yes")}

	responses := []models.Response{{QuestionID: 1, Answer: "Yes", AIPrefilled: true}}

	missing := MissingRequiredQuestions([]models.Question{q1, q2}, models.SubmissionTypeStandard, responses)
	if len(missing) != 2 {
		t.Fatalf("got %d missing, want both: the draft reveals q2 without satisfying q1", len(missing))
	}
}
