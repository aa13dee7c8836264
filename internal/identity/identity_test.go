package identity

import "testing"

func TestParseEnums(t *testing.T) {
	if ut, err := ParseUserType(" Staff "); err != nil || ut != UserTypeStaff {
		t.Fatalf("ParseUserType: got %q, %v", ut, err)
	}
	if _, err := ParseUserType("root"); err == nil {
		t.Fatalf("expected error for unknown user type")
	}
	if u, err := ParseStaffUnit("COMPLIANCE"); err != nil || u != UnitCompliance {
		t.Fatalf("ParseStaffUnit: got %q, %v", u, err)
	}
	if _, err := ParseStaffPosition("intern"); err == nil {
		t.Fatalf("expected error for unknown position")
	}
}

func TestIdentityValidate(t *testing.T) {
	cases := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"public applicant", Identity{UserID: "u1", UserType: UserTypePublic}, false},
		{"staff with unit and position", Identity{UserID: "u2", UserType: UserTypeStaff, StaffUnit: UnitRegistry, StaffPosition: PositionOfficer}, false},
		{"staff missing unit", Identity{UserID: "u3", UserType: UserTypeStaff, StaffPosition: PositionOfficer}, true},
		{"staff missing position", Identity{UserID: "u4", UserType: UserTypeStaff, StaffUnit: UnitRevenue}, true},
		{"public with unit", Identity{UserID: "u5", UserType: UserTypePublic, StaffUnit: UnitFinance}, true},
		{"missing user id", Identity{UserType: UserTypeAdmin}, true},
		{"super admin", Identity{UserID: "u6", UserType: UserTypeSuperAdmin}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.id.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	id := Identity{UserID: "u7", UserType: UserTypeStaff, StaffUnit: UnitDirectorate, StaffPosition: PositionDirector}
	ctx := ContextWithIdentity(t.Context(), id)
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("identity not preserved: %+v, ok=%v", got, ok)
	}
	if _, ok := FromContext(t.Context()); ok {
		t.Fatalf("unexpected identity in empty context")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter2-but-longer")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "hunter2-but-longer"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, err := HashPassword("  "); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
