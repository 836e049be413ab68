package services

import (
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"

	"irb-review-api/models"
)

var (
	decisionByVersionPattern = regexp.MustCompile(`SELECT \* FROM ` + "`submission_decisions`" + ` WHERE submission_id = \? AND version = \?`)
	decisionInsertPattern    = regexp.MustCompile(`INSERT INTO ` + "`submission_decisions`")
)

// A decision settles in two recorded hops inside one transaction:
// under_review -> decision_made -> final status, each with its own
// compare-and-swap and history row.
func TestRecordDecisionWritesBothHops(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("under_review", 2, 5, int64(8), nil)},
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
			rows:    [][]driver.Value{{int64(1), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindQuery,
			pattern: decisionByVersionPattern,
			args:    []driver.Value{int64(42), int64(2), limitOne},
			columns: []string{"decision_id", "submission_id", "version", "decision", "decided_by", "decided_at"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{anyArg, int64(6), "decision_made", anyArg, int64(42), int64(5)},
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
			pattern: decisionInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 70, rowsAffected: 1},
		},
		{
			// Second hop reuses the bumped lock_version.
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{int64(7), "accepted", anyArg, int64(42), int64(6)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: historyInsertPattern,
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 901, rowsAffected: 1},
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

	sub, decision, err := NewDecisionService(db).RecordDecision(Actor{UserID: 9}, 42, DecisionInput{
		Decision:  models.RecommendationAccept,
		Rationale: "Protocol risks are adequately mitigated",
	})
	if err != nil {
		t.Fatalf("record decision failed: %v", err)
	}
	if sub.Status != models.StatusAccepted {
		t.Fatalf("status: got %s want accepted", sub.Status)
	}
	if sub.LockVersion != 7 {
		t.Fatalf("lock version: got %d want 7 (two hops)", sub.LockVersion)
	}
	if sub.DecidedAt == nil {
		t.Fatal("decided_at not set")
	}
	if decision.DecisionID != 70 || decision.Version != 2 || decision.DecidedBy != 9 {
		t.Fatalf("decision row: %+v", decision)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestRecordDecisionRejectsSecondDecisionForVersion(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("under_review", 2, 5, int64(8), nil)},
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
			rows:    [][]driver.Value{{int64(1), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindQuery,
			pattern: decisionByVersionPattern,
			args:    []driver.Value{int64(42), int64(2), limitOne},
			columns: []string{"decision_id", "submission_id", "version", "decision", "decided_by", "decided_at"},
			rows: [][]driver.Value{
				{int64(70), int64(42), int64(2), "accept", int64(9), fixedTime},
			},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, _, err := NewDecisionService(db).RecordDecision(Actor{UserID: 9}, 42, DecisionInput{
		Decision: models.RecommendationDecline,
	})
	var invalid *InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidStateTransitionError", err)
	}
	if !strings.Contains(invalid.Reason, "already has a decision") {
		t.Fatalf("reason: %q", invalid.Reason)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestRecordDecisionRejectsUnknownValue(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	_, _, err := NewDecisionService(db).RecordDecision(Actor{UserID: 9}, 42, DecisionInput{
		Decision: models.Recommendation("tabled"),
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if validation.Field != "decision" {
		t.Fatalf("field: got %q want decision", validation.Field)
	}

	// Rejected before any query ran.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

// Two coordinators deciding at once: the loser's compare-and-swap matches
// nothing and no decision or history row is written for it.
func TestRecordDecisionStaleLockConflict(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: submissionByIDPattern,
			args:    []driver.Value{int64(42), limitOne},
			columns: submissionColumns,
			rows:    [][]driver.Value{submissionRow("under_review", 2, 5, int64(8), nil)},
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
			rows:    [][]driver.Value{{int64(1), int64(3), int64(9), "coordinator"}},
		},
		{
			kind:    kindQuery,
			pattern: decisionByVersionPattern,
			args:    []driver.Value{int64(42), int64(2), limitOne},
			columns: []string{"decision_id", "submission_id", "version", "decision", "decided_by", "decided_at"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: casUpdatePattern,
			args:    []driver.Value{anyArg, int64(6), "decision_made", anyArg, int64(42), int64(5)},
			result:  scriptedResult{rowsAffected: 0},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	_, _, err := NewDecisionService(db).RecordDecision(Actor{UserID: 9}, 42, DecisionInput{
		Decision: models.RecommendationAccept,
	})
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
