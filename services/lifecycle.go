package services

import (
	"irb-review-api/models"
)

// Event identifies a workflow action that can move a submission between
// statuses. Event names appear in audit rows and error messages.
type Event string

const (
	EventSubmit           Event = "submit"
	EventTriageAccept     Event = "triage_accept"
	EventTriageReturn     Event = "triage_return"
	EventAssignMain       Event = "assign_main_reviewer"
	EventAssignAssociates Event = "assign_associate_reviewers"
	EventRecordDecision   Event = "record_decision"
	EventResubmit         Event = "resubmit"
)

// actorClass names who may fire an event. The calling service resolves
// the acting user's relationship to the submission (submitter, board
// coordinator, assigned main reviewer); the table only fixes which
// relationship each event demands.
type actorClass int

const (
	actorSubmitter actorClass = iota
	actorCoordinator
	actorCoordinatorOrMain
)

// actorContext carries the resolved facts about the acting user that
// transition authorization depends on.
type actorContext struct {
	UserID         int
	IsSubmitter    bool
	IsCoordinator  bool
	IsMainReviewer bool
}

type transitionRule struct {
	To    models.SubmissionStatus
	Actor actorClass
}

func (r transitionRule) permits(a actorContext) bool {
	switch r.Actor {
	case actorSubmitter:
		return a.IsSubmitter
	case actorCoordinator:
		return a.IsCoordinator
	case actorCoordinatorOrMain:
		return a.IsCoordinator || a.IsMainReviewer
	}
	return false
}

// transitionTable is the authoritative map of every externally fired
// status change. Guards that depend on data beyond (status, event, role),
// such as answered questions or board membership of a target reviewer,
// live in the service that fires the event. The decision_made hop to the
// final status is applied inside RecordDecision from the decision value
// and is deliberately absent here: no external event may fire from
// decision_made, accepted or declined.
var transitionTable = map[models.SubmissionStatus]map[Event]transitionRule{
	models.StatusDraft: {
		EventSubmit: {To: models.StatusSubmitted, Actor: actorSubmitter},
	},
	models.StatusSubmitted: {
		EventTriageAccept: {To: models.StatusInTriage, Actor: actorCoordinator},
		EventTriageReturn: {To: models.StatusDraft, Actor: actorCoordinator},
	},
	models.StatusInTriage: {
		EventAssignMain: {To: models.StatusAssignedToMain, Actor: actorCoordinator},
	},
	models.StatusAssignedToMain: {
		EventAssignAssociates: {To: models.StatusUnderReview, Actor: actorCoordinatorOrMain},
	},
	models.StatusUnderReview: {
		EventRecordDecision: {To: models.StatusDecisionMade, Actor: actorCoordinatorOrMain},
	},
	models.StatusRevisionRequested: {
		EventResubmit: {To: models.StatusSubmitted, Actor: actorSubmitter},
	},
}

func ruleFor(from models.SubmissionStatus, ev Event) (transitionRule, bool) {
	rules, ok := transitionTable[from]
	if !ok {
		return transitionRule{}, false
	}
	r, ok := rules[ev]
	return r, ok
}

// nextStatus validates that ev may fire from the given status by the
// given actor and returns the resulting status. Status check runs before
// the role check so callers in the wrong state learn that first.
func nextStatus(submissionID int, from models.SubmissionStatus, ev Event, actor actorContext) (models.SubmissionStatus, error) {
	rule, ok := ruleFor(from, ev)
	if !ok {
		return "", &InvalidStateTransitionError{SubmissionID: submissionID, From: from, Event: string(ev)}
	}
	if !rule.permits(actor) {
		return "", &AuthorizationError{Action: string(ev), UserID: actor.UserID}
	}
	return rule.To, nil
}
