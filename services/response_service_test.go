package services

import (
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"irb-review-api/models"
)

var (
	responseLookupPattern  = regexp.MustCompile(`SELECT \* FROM ` + "`submission_responses`" + ` WHERE submission_id = \? AND question_id = \?`)
	responseInsertPattern  = regexp.MustCompile(`INSERT INTO ` + "`submission_responses`")
	responseUpdatePattern  = regexp.MustCompile(`UPDATE ` + "`submission_responses`" + ` SET `)
	assignmentCountPattern = regexp.MustCompile(`SELECT count\(\*\) FROM ` + "`reviewer_assignments`" + ` WHERE submission_id = \? AND reviewer_id = \? AND version = \?`)
)

var questionColumns = []string{
	"question_id", "section_id", "question_text", "question_type", "options",
	"is_required", "display_order", "is_active", "submission_type_filter",
}

// Saving writes exactly what comes back: the stored answer, the cleared
// prefill flag and the confirmed flag all round-trip through the upsert,
// whether the row is fresh or overwrites an AI suggestion.
func TestSaveResponsesRoundTrip(t *testing.T) {
	objectives := "We will enroll 40 adults across two sites."

	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: boardQuestionsPattern,
			args:    []driver.Value{int64(3)},
			columns: questionColumns,
			rows: [][]driver.Value{
				{int64(101), int64(11), "Primary objectives", "textarea", nil, int64(1), int64(1), int64(1), "both"},
				{int64(102), int64(11), "Human subjects involved?", "radio", `["Yes","No"]`, int64(1), int64(2), int64(1), "both"},
			},
		},
		{
			kind:    kindQuery,
			pattern: conditionsPattern,
			args:    []driver.Value{int64(101), int64(102)},
			columns: []string{"condition_id", "question_id", "depends_on_question_id", "operator", "compare_value"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(101), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: responseInsertPattern,
			args:    []driver.Value{int64(42), int64(101), objectives, false, true, anyArg, anyArg},
			result:  scriptedResult{lastInsertID: 90, rowsAffected: 1},
		},
		{
			// Question 102 already holds an unconfirmed AI suggestion.
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(102), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{{int64(55), int64(42), int64(102), "No", true, false}},
		},
		{
			kind:    kindExec,
			pattern: responseUpdatePattern,
			args:    []driver.Value{false, "Yes", anyArg, true, int64(55)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: auditInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 1200, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	saved, err := NewResponseService(db).SaveResponses(Actor{UserID: 7}, 42, []ResponseInput{
		{QuestionID: 101, Answer: objectives},
		{QuestionID: 102, Answer: "Yes"},
	})
	if err != nil {
		t.Fatalf("save responses failed: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("got %d saved rows, want 2", len(saved))
	}

	if saved[0].ResponseID != 90 || saved[0].Answer != objectives {
		t.Fatalf("fresh row: %+v", saved[0])
	}
	if saved[0].AIPrefilled || !saved[0].UserConfirmed {
		t.Fatalf("fresh row provenance: ai_prefilled=%v user_confirmed=%v", saved[0].AIPrefilled, saved[0].UserConfirmed)
	}

	if saved[1].ResponseID != 55 || saved[1].Answer != "Yes" {
		t.Fatalf("overwritten row: %+v", saved[1])
	}
	if saved[1].AIPrefilled || !saved[1].UserConfirmed {
		t.Fatalf("overwrite kept AI provenance: ai_prefilled=%v user_confirmed=%v", saved[1].AIPrefilled, saved[1].UserConfirmed)
	}
	if !saved[1].CountsAsAnswered() {
		t.Fatal("user-authored answer does not count toward the submit check")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestSaveResponsesOnlySubmitterMayWrite(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewResponseService(db).SaveResponses(Actor{UserID: 12}, 42, []ResponseInput{
		{QuestionID: 101, Answer: "tampering"},
	})
	var authz *AuthorizationError
	if !errors.As(err, &authz) {
		t.Fatalf("got %v, want AuthorizationError", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestSaveResponsesLockedOnceSubmitted(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("submitted", 1, 1, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewResponseService(db).SaveResponses(Actor{UserID: 7}, 42, []ResponseInput{
		{QuestionID: 101, Answer: "late edit"},
	})
	var invalid *InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidStateTransitionError", err)
	}
	if invalid.From != models.StatusSubmitted {
		t.Fatalf("from status: got %s", invalid.From)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestSaveResponsesRejectsForeignQuestion(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: boardQuestionsPattern,
			args:    []driver.Value{int64(3)},
			columns: questionColumns,
			rows: [][]driver.Value{
				{int64(101), int64(11), "Primary objectives", "textarea", nil, int64(1), int64(1), int64(1), "both"},
			},
		},
		{
			kind:    kindQuery,
			pattern: conditionsPattern,
			args:    []driver.Value{int64(101)},
			columns: []string{"condition_id", "question_id", "depends_on_question_id", "operator", "compare_value"},
			rows:    [][]driver.Value{},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewResponseService(db).SaveResponses(Actor{UserID: 7}, 42, []ResponseInput{
		{QuestionID: 999, Answer: "does not exist here"},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if validation.QuestionID != 999 {
		t.Fatalf("error names question %d, want 999", validation.QuestionID)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

// A bad answer anywhere in the batch aborts the transaction; the answers
// before it are rolled back, not half-saved.
func TestSaveResponsesBatchStopsOnInvalidAnswer(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("revision_requested", 1, 3, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: boardQuestionsPattern,
			args:    []driver.Value{int64(3)},
			columns: questionColumns,
			rows: [][]driver.Value{
				{int64(101), int64(11), "Primary objectives", "textarea", nil, int64(1), int64(1), int64(1), "both"},
				{int64(103), int64(11), "Planned sample size", "number", nil, int64(1), int64(3), int64(1), "both"},
			},
		},
		{
			kind:    kindQuery,
			pattern: conditionsPattern,
			args:    []driver.Value{int64(101), int64(103)},
			columns: []string{"condition_id", "question_id", "depends_on_question_id", "operator", "compare_value"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(101), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: responseInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 91, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewResponseService(db).SaveResponses(Actor{UserID: 7}, 42, []ResponseInput{
		{QuestionID: 101, Answer: "Objectives unchanged from version 1."},
		{QuestionID: 103, Answer: "two hundred"},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if validation.QuestionID != 103 {
		t.Fatalf("error names question %d, want 103", validation.QuestionID)
	}

	// The audit row was never reached.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestConfirmResponseKeepsPrefillFlag(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(102), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{{int64(55), int64(42), int64(102), "Interviews with adults", true, false}},
		},
		{
			kind:    kindExec,
			pattern: responseUpdatePattern,
			args:    []driver.Value{anyArg, true, int64(55)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: auditInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 1201, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	confirmed, err := NewResponseService(db).ConfirmResponse(Actor{UserID: 7}, 42, 102)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !confirmed.AIPrefilled {
		t.Fatal("confirming erased the AI provenance flag")
	}
	if !confirmed.UserConfirmed {
		t.Fatal("answer was not confirmed")
	}
	if !confirmed.CountsAsAnswered() {
		t.Fatal("confirmed prefill does not count toward the submit check")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestConfirmResponseNoopWhenUserAuthored(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			// Already user-confirmed: no update follows, only the audit row.
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(101), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{{int64(56), int64(42), int64(101), "Hand-written objectives", false, true}},
		},
		{
			kind:    kindExec,
			pattern: auditInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 1202, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	confirmed, err := NewResponseService(db).ConfirmResponse(Actor{UserID: 7}, 42, 101)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.AIPrefilled || !confirmed.UserConfirmed {
		t.Fatalf("row changed: %+v", confirmed)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestConfirmResponseMissingAnswer(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: responseLookupPattern,
			args:    []driver.Value{int64(42), int64(104), limitOne},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewResponseService(db).ConfirmResponse(Actor{UserID: 7}, 42, 104)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want NotFoundError", err)
	}
	if notFound.Entity != "response" {
		t.Fatalf("entity: got %s", notFound.Entity)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

// The questionnaire applies the visibility rules to whatever is answered
// so far: a branch whose condition fails is left out of the visible list
// while its saved answer still comes back.
func TestQuestionnaireHidesFailingBranches(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("draft", 1, 0, nil, nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: boardQuestionsPattern,
			args:    []driver.Value{int64(3)},
			columns: questionColumns,
			rows: [][]driver.Value{
				{int64(101), int64(11), "Human subjects involved?", "radio", `["Yes","No"]`, int64(1), int64(1), int64(1), "both"},
				{int64(102), int64(11), "Describe the consent process", "textarea", nil, int64(1), int64(2), int64(1), "both"},
			},
		},
		{
			kind:    kindQuery,
			pattern: conditionsPattern,
			args:    []driver.Value{int64(101), int64(102)},
			columns: []string{"condition_id", "question_id", "depends_on_question_id", "operator", "compare_value"},
			rows:    [][]driver.Value{{int64(1), int64(102), int64(101), "equals", "Yes"}},
		},
		{
			kind:    kindQuery,
			pattern: responsesPattern,
			args:    []driver.Value{int64(42)},
			columns: []string{"response_id", "submission_id", "question_id", "answer", "ai_prefilled", "user_confirmed"},
			rows:    [][]driver.Value{{int64(60), int64(42), int64(101), "No", false, true}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	visible, responses, err := NewResponseService(db).Questionnaire(Actor{UserID: 7}, 42)
	if err != nil {
		t.Fatalf("questionnaire failed: %v", err)
	}
	if len(visible) != 1 || visible[0].QuestionID != 101 {
		t.Fatalf("visible questions: %+v", visible)
	}
	if len(responses) != 1 || responses[0].QuestionID != 101 {
		t.Fatalf("responses: %+v", responses)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestQuestionnaireRejectsOutsider(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("under_review", 1, 5, int64(8), nil)},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(7)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(7), "Rita", "Researcher", "rita@example.org", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: boardRolesPattern,
			args:    []driver.Value{int64(3), int64(12)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindQuery,
			pattern: assignmentCountPattern,
			args:    []driver.Value{int64(42), int64(12), int64(1)},
			columns: []string{"count"},
			rows:    [][]driver.Value{{int64(0)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, _, err := NewResponseService(db).Questionnaire(Actor{UserID: 12}, 42)
	var authz *AuthorizationError
	if !errors.As(err, &authz) {
		t.Fatalf("got %v, want AuthorizationError", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}
