package workflow

import (
	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/policy"
)

type edge struct {
	From   Status
	Action Action
}

// transitions is the single authoritative edge table. reject, revoke and
// cancel edges are filled in below for the states that allow them.
var transitions = map[edge]Status{
	{StatusDraft, ActionSubmit}:                          StatusSubmitted,
	{StatusSubmitted, ActionBeginAssessment}:             StatusUnderAssessment,
	{StatusSubmitted, ActionAssessPass}:                  StatusPassedInitialReview,
	{StatusSubmitted, ActionRequestClarification}:        StatusRequiresClarification,
	{StatusUnderAssessment, ActionAssessPass}:            StatusPassedInitialReview,
	{StatusUnderAssessment, ActionRequestClarification}:  StatusRequiresClarification,
	{StatusRequiresClarification, ActionResubmit}:        StatusUnderAssessment,
	{StatusPassedInitialReview, ActionForwardToCompliance}: StatusForwardedToCompliance,
	{StatusForwardedToCompliance, ActionBeginCompliance}: StatusComplianceReview,
	{StatusComplianceReview, ActionForwardToDirectorate}: StatusDirectorateReview,
	{StatusDirectorateReview, ActionApprove}:             StatusApproved,
	{StatusApproved, ActionSignLetter}:                   StatusLetterSigned,
}

var terminalStatuses = map[Status]struct{}{
	StatusLetterSigned: {},
	StatusRejected:     {},
	StatusRevoked:      {},
	StatusCancelled:    {},
}

// cancellable states: owner withdrawal is limited to the pre-compliance
// part of the pipeline; later withdrawal is a staff revoke.
var cancellable = []Status{
	StatusDraft, StatusSubmitted, StatusUnderAssessment, StatusRequiresClarification,
}

// stageOwner maps a status to the unit whose queue it sits in. Statuses
// absent from the map (draft, terminals) are not owned by any unit.
var stageOwner = map[Status]identity.StaffUnit{
	StatusSubmitted:             identity.UnitRegistry,
	StatusUnderAssessment:       identity.UnitRegistry,
	StatusRequiresClarification: identity.UnitRegistry,
	StatusPassedInitialReview:   identity.UnitRegistry,
	StatusForwardedToCompliance: identity.UnitCompliance,
	StatusComplianceReview:      identity.UnitCompliance,
	StatusDirectorateReview:     identity.UnitDirectorate,
	StatusApproved:              identity.UnitDirectorate,
}

func init() {
	all := []Status{
		StatusDraft, StatusSubmitted, StatusUnderAssessment, StatusRequiresClarification,
		StatusPassedInitialReview, StatusForwardedToCompliance, StatusComplianceReview,
		StatusDirectorateReview, StatusApproved,
	}
	// reject and revoke stay reachable from every non-terminal state.
	for _, s := range all {
		transitions[edge{s, ActionReject}] = StatusRejected
		transitions[edge{s, ActionRevoke}] = StatusRevoked
	}
	for _, s := range cancellable {
		transitions[edge{s, ActionCancel}] = StatusCancelled
	}
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Next resolves the transition table. The boolean is false when the
// (state, action) pair is not a legal edge.
func Next(from Status, action Action) (Status, bool) {
	to, ok := transitions[edge{from, action}]
	return to, ok
}

// StageOwner returns the unit owning the given status, if any.
func StageOwner(s Status) (identity.StaffUnit, bool) {
	u, ok := stageOwner[s]
	return u, ok
}

// stagePolicies maps each stage-owning unit to the route policy gating
// its queue actions.
var stagePolicies = map[identity.StaffUnit]policy.AccessPolicy{
	identity.UnitRegistry:   policy.RegistryReview,
	identity.UnitCompliance: policy.ComplianceReview,
}

func stagePolicy(unit identity.StaffUnit) policy.AccessPolicy {
	if p, ok := stagePolicies[unit]; ok {
		return p
	}
	return policy.AccessPolicy{
		Name:         "stage_" + string(unit),
		AllowedRoles: []identity.UserType{identity.UserTypeStaff},
		AllowedUnits: []identity.StaffUnit{unit},
	}
}

// authorize decides whether the actor may apply the action to the
// application in its current state. It is deliberately separate from the
// edge check: an illegal edge is ErrInvalidTransition, a legal edge by
// the wrong actor is ErrUnauthorized.
func authorize(actor identity.Identity, app Application, action Action) error {
	if actor.IsZero() {
		return ErrUnauthorized
	}
	if actor.IsSuperAdmin() {
		return nil
	}

	switch action {
	case ActionSubmit, ActionResubmit, ActionCancel:
		// Owner actions; admins may act on any record.
		if actor.UserID == app.OwnerID {
			return nil
		}
		if actor.UserType == identity.UserTypeAdmin {
			return nil
		}
		return ErrUnauthorized

	case ActionReject, ActionRevoke:
		if actor.UserType == identity.UserTypeAdmin {
			return nil
		}
		owner, owned := StageOwner(app.Status)
		if !owned {
			return ErrUnauthorized
		}
		p := stagePolicy(owner)
		p.AllowedPositions = []identity.StaffPosition{
			identity.PositionManager, identity.PositionDirector, identity.PositionManagingDirector,
		}
		if policy.Authorize(actor, p) {
			return nil
		}
		return ErrUnauthorized

	case ActionApprove:
		if policy.Authorize(actor, policy.DirectorateApproval) {
			return nil
		}
		return ErrUnauthorized

	case ActionSignLetter:
		if policy.Authorize(actor, policy.LetterSigning) {
			return nil
		}
		return ErrUnauthorized

	default:
		// Unit-owned stage actions: the actor must pass the policy of
		// the unit whose queue the application currently sits in.
		owner, owned := StageOwner(app.Status)
		if !owned {
			return ErrUnauthorized
		}
		if policy.Authorize(actor, stagePolicy(owner)) {
			return nil
		}
		return ErrUnauthorized
	}
}

// assessmentStatus maps an action to the assessment outcome recorded in
// the acting unit's review record.
func assessmentStatus(action Action) string {
	switch action {
	case ActionBeginAssessment, ActionBeginCompliance:
		return "in_progress"
	case ActionAssessPass:
		return "passed"
	case ActionRequestClarification:
		return "clarification_requested"
	case ActionForwardToCompliance, ActionForwardToDirectorate:
		return "forwarded"
	case ActionApprove:
		return "approved"
	case ActionSignLetter:
		return "letter_signed"
	case ActionReject:
		return "rejected"
	case ActionRevoke:
		return "revoked"
	default:
		return ""
	}
}
