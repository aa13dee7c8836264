package policy

import "permitdesk.org/internal/identity"

// Named policies enforced by the HTTP layer and the workflow
// authorizer. The original portal duplicated these checks inline on
// every screen; keeping them here as tagged data gives a single
// enforcement point.
var (
	// Applicant submits applications and reads their own records.
	Applicant = AccessPolicy{
		Name:         "applicant",
		AllowedRoles: []identity.UserType{identity.UserTypePublic},
	}

	// AnyStaff gates staff-wide surfaces such as the review queues.
	AnyStaff = AccessPolicy{
		Name:         "any_staff",
		AllowedRoles: []identity.UserType{identity.UserTypeStaff, identity.UserTypeAdmin},
	}

	// RegistryReview gates initial assessment actions.
	RegistryReview = AccessPolicy{
		Name:         "registry_review",
		AllowedRoles: []identity.UserType{identity.UserTypeStaff},
		AllowedUnits: []identity.StaffUnit{identity.UnitRegistry},
	}

	// ComplianceReview gates the compliance stage.
	ComplianceReview = AccessPolicy{
		Name:         "compliance_review",
		AllowedRoles: []identity.UserType{identity.UserTypeStaff},
		AllowedUnits: []identity.StaffUnit{identity.UnitCompliance},
	}

	// DirectorateApproval gates final approval; officer-level directorate
	// staff may observe but not decide.
	DirectorateApproval = AccessPolicy{
		Name:             "directorate_approval",
		AllowedRoles:     []identity.UserType{identity.UserTypeStaff},
		AllowedUnits:     []identity.StaffUnit{identity.UnitDirectorate},
		AllowedPositions: []identity.StaffPosition{identity.PositionDirector, identity.PositionManagingDirector},
	}

	// LetterSigning is the managing director's sole prerogative.
	LetterSigning = AccessPolicy{
		Name:             "letter_signing",
		AllowedRoles:     []identity.UserType{identity.UserTypeStaff},
		AllowedUnits:     []identity.StaffUnit{identity.UnitDirectorate},
		AllowedPositions: []identity.StaffPosition{identity.PositionManagingDirector},
	}

)
