package services

import (
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"irb-review-api/models"
)

var (
	activeUserPattern       = regexp.MustCompile(`SELECT \* FROM ` + "`users`" + ` WHERE user_id = \? AND delete_at IS NULL`)
	assignmentInsertPattern = regexp.MustCompile(`INSERT INTO ` + "`reviewer_assignments`")
)

func TestAssignMainTransitionsAndNotifies(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("in_triage", 1, 2, nil, nil)},
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
			args:    []driver.Value{int64(3), int64(9)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(20), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindQuery,
			pattern: boardRolesPattern,
			args:    []driver.Value{int64(3), int64(8)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(21), int64(3), int64(8), "main_reviewer"}},
		},
		{
			kind:    kindQuery,
			pattern: activeUserPattern,
			args:    []driver.Value{int64(8), limitOne},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(8), "Martin", "Mainly", "", int64(2)}},
		},
		{
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{int64(3), int64(8), "assigned_to_main", anyArg, int64(42), int64(2)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: historyInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 900, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: notifyInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 500, rowsAffected: 1},
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

	sub, err := NewAssignmentService(db).AssignMain(Actor{UserID: 9}, 42, 8)
	if err != nil {
		t.Fatalf("assign main failed: %v", err)
	}
	if sub.Status != models.StatusAssignedToMain {
		t.Fatalf("status: got %s", sub.Status)
	}
	if sub.MainReviewerID == nil || *sub.MainReviewerID != 8 {
		t.Fatalf("main reviewer: got %v", sub.MainReviewerID)
	}
	if sub.LockVersion != 3 {
		t.Fatalf("lock version: got %d", sub.LockVersion)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestAssignMainRejectsTargetWithoutRole(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("in_triage", 1, 2, nil, nil)},
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
			args:    []driver.Value{int64(3), int64(9)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(20), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindQuery,
			pattern: boardRolesPattern,
			args:    []driver.Value{int64(3), int64(11)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(22), int64(3), int64(11), "associate_reviewer"}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, err := NewAssignmentService(db).AssignMain(Actor{UserID: 9}, 42, 11)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if validation.Field != "reviewer_id" {
		t.Fatalf("field: got %s", validation.Field)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

// Adding reviewers while already under review is not a transition, but
// it still bumps the lock version so a decision racing with the change
// loses its CAS.
func TestAssignAssociatesAdditiveCallBumpsLock(t *testing.T) {
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
			args:    []driver.Value{int64(3), int64(9)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(20), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{int64(6), anyArg, int64(42), int64(5)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: assignmentsByVersionPattern,
			args:    []driver.Value{int64(42), int64(1)},
			columns: []string{"assignment_id", "submission_id", "reviewer_id", "role", "version"},
			rows:    [][]driver.Value{{int64(11), int64(42), int64(12), "associate_reviewer", int64(1)}},
		},
		{
			kind:    kindQuery,
			pattern: userPreloadPattern,
			args:    []driver.Value{int64(12)},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(12), "Ana", "Associate", "", int64(2)}},
		},
		{
			kind:    kindQuery,
			pattern: boardRolesPattern,
			args:    []driver.Value{int64(3), int64(13)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(23), int64(3), int64(13), "statistician"}},
		},
		{
			kind:    kindExec,
			pattern: assignmentInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 30, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: notifyInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 501, rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: userByIDPattern,
			args:    []driver.Value{int64(13), limitOne},
			columns: userColumns,
			rows:    [][]driver.Value{{int64(13), "Stan", "Stats", "", int64(2)}},
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

	// 12 is already assigned, 8 is the main reviewer: only 13 is new.
	sub, created, err := NewAssignmentService(db).AssignAssociates(Actor{UserID: 9}, 42, []int{12, 8, 13, 13})
	if err != nil {
		t.Fatalf("assign associates failed: %v", err)
	}
	if sub.Status != models.StatusUnderReview {
		t.Fatalf("status moved on an additive call: %s", sub.Status)
	}
	if sub.LockVersion != 6 {
		t.Fatalf("lock version: got %d", sub.LockVersion)
	}
	if len(created) != 1 {
		t.Fatalf("got %d assignments, want 1", len(created))
	}
	if created[0].ReviewerID != 13 || created[0].Role != models.BoardRoleStatistician {
		t.Fatalf("assignment: got %+v", created[0])
	}
	if created[0].Version != 1 {
		t.Fatalf("assignment version: got %d", created[0].Version)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestAssignAssociatesStaleLockOnAdditiveCall(t *testing.T) {
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
			args:    []driver.Value{int64(3), int64(9)},
			columns: []string{"member_id", "board_id", "user_id", "role"},
			rows:    [][]driver.Value{{int64(20), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{int64(6), anyArg, int64(42), int64(5)},
			result:  scriptedResult{rowsAffected: 0},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, _, err := NewAssignmentService(db).AssignAssociates(Actor{UserID: 9}, 42, []int{13})
	var stale *StaleStateConflictError
	if !errors.As(err, &stale) {
		t.Fatalf("got %v, want StaleStateConflictError", err)
	}
	if stale.SubmissionID != 42 {
		t.Fatalf("submission id: got %d", stale.SubmissionID)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestDedupeIDs(t *testing.T) {
	got := dedupeIDs([]int{3, 0, 3, -1, 5, 3})
	if !reflect.DeepEqual(got, []int{3, 5}) {
		t.Fatalf("got %v", got)
	}
	if got := dedupeIDs(nil); len(got) != 0 {
		t.Fatalf("nil input: got %v", got)
	}
}
