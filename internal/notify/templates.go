package notify

import (
	"fmt"
	"strings"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/workflow"
)

// template is the deterministic content for one transition edge. The
// same (from, to, application type) always renders the same title and
// message, with only application identifiers interpolated. Unit, when
// set, addresses the queue explicitly; otherwise the unit owning the
// target state is notified.
type template struct {
	Unit           identity.StaffUnit
	Type           string
	Title          string
	Message        string // fmt: application type label, application id
	Priority       Priority
	ActionRequired bool
}

type transitionKey struct {
	From workflow.Status
	To   workflow.Status
}

var unitTemplates = map[transitionKey]template{
	{workflow.StatusDraft, workflow.StatusSubmitted}: {
		Type:           "application_submitted",
		Title:          "New application submitted",
		Message:        "A %s application (%s) has been submitted and awaits initial assessment.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	{workflow.StatusRequiresClarification, workflow.StatusUnderAssessment}: {
		Type:           "application_resubmitted",
		Title:          "Application resubmitted",
		Message:        "The %s application (%s) has been resubmitted with clarifications.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	// Initial review outcomes address compliance directly: the record
	// still sits in the registry queue awaiting the forward, but the
	// receiving unit is told to prepare.
	{workflow.StatusSubmitted, workflow.StatusPassedInitialReview}: {
		Unit:           identity.UnitCompliance,
		Type:           "initial_review_passed",
		Title:          "Application passed initial review",
		Message:        "The %s application (%s) passed initial review and heads to compliance next.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	{workflow.StatusUnderAssessment, workflow.StatusPassedInitialReview}: {
		Unit:           identity.UnitCompliance,
		Type:           "initial_review_passed",
		Title:          "Application passed initial review",
		Message:        "The %s application (%s) passed initial review and heads to compliance next.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	{workflow.StatusPassedInitialReview, workflow.StatusForwardedToCompliance}: {
		Type:           "forwarded_to_compliance",
		Title:          "Application forwarded for compliance review",
		Message:        "The %s application (%s) has been forwarded by registry and awaits compliance review.",
		Priority:       PriorityHigh,
		ActionRequired: true,
	},
	{workflow.StatusForwardedToCompliance, workflow.StatusComplianceReview}: {
		Type:           "compliance_review_started",
		Title:          "Compliance review started",
		Message:        "Compliance review of the %s application (%s) is underway.",
		Priority:       PriorityNormal,
		ActionRequired: false,
	},
	{workflow.StatusComplianceReview, workflow.StatusDirectorateReview}: {
		Type:           "directorate_review_requested",
		Title:          "Application awaiting directorate decision",
		Message:        "The %s application (%s) cleared compliance and awaits a directorate decision.",
		Priority:       PriorityHigh,
		ActionRequired: true,
	},
	{workflow.StatusDirectorateReview, workflow.StatusApproved}: {
		Type:           "application_approved",
		Title:          "Application approved, letter pending",
		Message:        "The %s application (%s) was approved and awaits letter signing.",
		Priority:       PriorityHigh,
		ActionRequired: true,
	},
}

// submitterTemplates cover the transitions that go back to the original
// applicant: clarification requests and every terminal outcome.
var submitterTemplates = map[workflow.Status]template{
	workflow.StatusRequiresClarification: {
		Type:           "clarification_requested",
		Title:          "Clarification required",
		Message:        "Your %s application (%s) requires clarification before assessment can continue.",
		Priority:       PriorityHigh,
		ActionRequired: true,
	},
	workflow.StatusLetterSigned: {
		Type:           "permit_issued",
		Title:          "Permit issued",
		Message:        "Your %s application (%s) has been approved and the permit letter signed.",
		Priority:       PriorityHigh,
		ActionRequired: false,
	},
	workflow.StatusRejected: {
		Type:           "application_rejected",
		Title:          "Application rejected",
		Message:        "Your %s application (%s) has been rejected.",
		Priority:       PriorityHigh,
		ActionRequired: false,
	},
	workflow.StatusRevoked: {
		Type:           "application_revoked",
		Title:          "Application revoked",
		Message:        "Your %s application (%s) has been revoked.",
		Priority:       PriorityUrgent,
		ActionRequired: false,
	},
	workflow.StatusCancelled: {
		Type:           "application_cancelled",
		Title:          "Application cancelled",
		Message:        "Your %s application (%s) has been cancelled.",
		Priority:       PriorityNormal,
		ActionRequired: false,
	},
}

func typeLabel(t workflow.ApplicationType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func render(tpl template, event workflow.TransitionEvent) (title, message string) {
	return tpl.Title, fmt.Sprintf(tpl.Message, typeLabel(event.ApplicationType), event.ApplicationID)
}
