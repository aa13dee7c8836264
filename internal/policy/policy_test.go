package policy

import (
	"testing"

	"permitdesk.org/internal/identity"
)

func staffID(unit identity.StaffUnit, pos identity.StaffPosition) identity.Identity {
	return identity.Identity{UserID: "u", UserType: identity.UserTypeStaff, StaffUnit: unit, StaffPosition: pos}
}

func TestSuperAdminBypassesEveryPolicy(t *testing.T) {
	super := identity.Identity{UserID: "root", UserType: identity.UserTypeSuperAdmin}
	policies := []AccessPolicy{
		Applicant, AnyStaff, RegistryReview, ComplianceReview,
		DirectorateApproval, LetterSigning,
		{Name: "deny_all", AllowedRoles: []identity.UserType{}},
	}
	for _, p := range policies {
		if !Authorize(super, p) {
			t.Fatalf("super_admin denied by %q", p.Name)
		}
	}
}

func TestEmptyPolicyIsOpenForAnyIdentity(t *testing.T) {
	// A policy with all three lists unset authorizes every non-null
	// identity. Easy to misconfigure, so pinned by a test.
	open := AccessPolicy{Name: "open"}
	ids := []identity.Identity{
		{UserID: "p", UserType: identity.UserTypePublic},
		{UserID: "a", UserType: identity.UserTypeAdmin},
		staffID(identity.UnitFinance, identity.PositionOfficer),
	}
	for _, id := range ids {
		if !Authorize(id, open) {
			t.Fatalf("open policy denied %+v", id)
		}
	}
	if Authorize(identity.Identity{}, open) {
		t.Fatalf("zero identity must always be denied")
	}
}

func TestUnitMismatchDeniesEvenWhenRoleAllowed(t *testing.T) {
	revenueOfficer := staffID(identity.UnitRevenue, identity.PositionOfficer)
	if Authorize(revenueOfficer, ComplianceReview) {
		t.Fatalf("revenue staff must not pass compliance policy")
	}
	complianceOfficer := staffID(identity.UnitCompliance, identity.PositionOfficer)
	if !Authorize(complianceOfficer, ComplianceReview) {
		t.Fatalf("compliance staff must pass compliance policy")
	}
}

func TestPositionCheckAppliesToStaffOnly(t *testing.T) {
	officer := staffID(identity.UnitDirectorate, identity.PositionOfficer)
	if Authorize(officer, DirectorateApproval) {
		t.Fatalf("directorate officer must not approve")
	}
	director := staffID(identity.UnitDirectorate, identity.PositionDirector)
	if !Authorize(director, DirectorateApproval) {
		t.Fatalf("director must approve")
	}
	md := staffID(identity.UnitDirectorate, identity.PositionManagingDirector)
	if !Authorize(md, LetterSigning) {
		t.Fatalf("managing director must sign letters")
	}
	if Authorize(director, LetterSigning) {
		t.Fatalf("director must not sign letters")
	}
}

func TestNonStaffSkipsUnitAndPositionChecks(t *testing.T) {
	// Admin accounts have no unit; a policy restricting units but
	// allowing the admin role must admit them.
	p := AccessPolicy{
		Name:         "admin_or_registry",
		AllowedRoles: []identity.UserType{identity.UserTypeAdmin, identity.UserTypeStaff},
		AllowedUnits: []identity.StaffUnit{identity.UnitRegistry},
	}
	admin := identity.Identity{UserID: "adm", UserType: identity.UserTypeAdmin}
	if !Authorize(admin, p) {
		t.Fatalf("admin should skip staff-only unit check")
	}
	public := identity.Identity{UserID: "pub", UserType: identity.UserTypePublic}
	if Authorize(public, p) {
		t.Fatalf("public role is not in the allow-list")
	}
}

func TestApplicantPolicy(t *testing.T) {
	public := identity.Identity{UserID: "pub", UserType: identity.UserTypePublic}
	if !Authorize(public, Applicant) {
		t.Fatalf("public user must pass applicant policy")
	}
	if Authorize(staffID(identity.UnitRegistry, identity.PositionOfficer), Applicant) {
		t.Fatalf("staff must not pass applicant policy")
	}
}
