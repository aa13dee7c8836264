// Package workflow is the review state machine for permit applications.
// All status changes flow through a single transition table keyed by
// (state, action); illegal transitions are rejected structurally.
package workflow

import (
	"errors"
	"time"

	"permitdesk.org/internal/identity"
)

// ApplicationType distinguishes the permit pipelines.
type ApplicationType string

const (
	TypeNew                 ApplicationType = "new"
	TypeAmendment           ApplicationType = "amendment"
	TypeRenewal             ApplicationType = "renewal"
	TypeTransfer            ApplicationType = "transfer"
	TypeSurrender           ApplicationType = "surrender"
	TypeAmalgamation        ApplicationType = "amalgamation"
	TypeComplianceReport    ApplicationType = "compliance_report"
	TypeEnforcementResponse ApplicationType = "enforcement_response"
)

// ApplicationTypes lists every supported pipeline.
var ApplicationTypes = []ApplicationType{
	TypeNew, TypeAmendment, TypeRenewal, TypeTransfer,
	TypeSurrender, TypeAmalgamation, TypeComplianceReport, TypeEnforcementResponse,
}

// Status is the application's position in the review pipeline.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusUnderAssessment       Status = "under_assessment"
	StatusRequiresClarification Status = "requires_clarification"
	StatusPassedInitialReview   Status = "passed_initial_review"
	StatusForwardedToCompliance Status = "forwarded_to_compliance"
	StatusComplianceReview      Status = "compliance_review"
	StatusDirectorateReview     Status = "directorate_review"
	StatusApproved              Status = "approved"
	StatusRejected              Status = "rejected"
	StatusRevoked               Status = "revoked"
	StatusCancelled             Status = "cancelled"
	StatusLetterSigned          Status = "letter_signed"
)

// Action is a request to move an application along the pipeline.
type Action string

const (
	ActionSubmit               Action = "submit"
	ActionBeginAssessment      Action = "begin_assessment"
	ActionRequestClarification Action = "request_clarification"
	ActionResubmit             Action = "resubmit"
	ActionAssessPass           Action = "assess_pass"
	ActionForwardToCompliance  Action = "forward_to_compliance"
	ActionBeginCompliance      Action = "begin_compliance_review"
	ActionForwardToDirectorate Action = "forward_to_directorate"
	ActionApprove              Action = "approve"
	ActionSignLetter           Action = "sign_letter"
	ActionReject               Action = "reject"
	ActionRevoke               Action = "revoke"
	ActionCancel               Action = "cancel"
)

// Application is the unit of work flowing through review.
// Version is a monotonically increasing counter used for optimistic
// concurrency control at the persistence boundary.
type Application struct {
	ID         string          `json:"id"`
	Type       ApplicationType `json:"type"`
	Status     Status          `json:"status"`
	OwnerID    string          `json:"owner_id"`
	AssignedTo string          `json:"assigned_to,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ReviewRecord is one unit's assessment of an application. Records are
// append-or-update per (application, unit) and never deleted.
type ReviewRecord struct {
	ApplicationID       string             `json:"application_id"`
	Unit                identity.StaffUnit `json:"unit"`
	AssessedBy          string             `json:"assessed_by"`
	AssessmentStatus    string             `json:"assessment_status"`
	Notes               string             `json:"notes,omitempty"`
	Recommendations     string             `json:"recommendations,omitempty"`
	RequiresEIA         bool               `json:"requires_eia"`
	RequiresWorkplan    bool               `json:"requires_workplan"`
	ForwardedToNextUnit bool               `json:"forwarded_to_next_unit"`
	FollowUpDue         *time.Time         `json:"follow_up_due,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Audit actions recorded alongside mutating operations.
const (
	AuditCreate = "CREATE"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
	AuditLogin  = "LOGIN"
	AuditLogout = "LOGOUT"
)

// AuditEntry is an append-only record of an actor's action.
type AuditEntry struct {
	ID         string            `json:"id"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TransitionEvent is emitted after a transition commits, for the
// notification layer to consume.
type TransitionEvent struct {
	ApplicationID   string            `json:"application_id"`
	ApplicationType ApplicationType   `json:"application_type"`
	OwnerID         string            `json:"owner_id"`
	From            Status            `json:"from"`
	To              Status            `json:"to"`
	Action          Action            `json:"action"`
	Actor           identity.Identity `json:"actor"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

var (
	ErrNotFound          = errors.New("workflow: application not found")
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	ErrUnauthorized      = errors.New("workflow: actor not authorized for this action")
	ErrVersionConflict   = errors.New("workflow: concurrent modification")
	ErrTerminalState     = errors.New("workflow: application is in a terminal state")
	ErrInvalidInput      = errors.New("workflow: invalid input")
)
