// Package identity models the authorization attributes of a caller:
// the user type, and for staff members the unit and position within it.
// Identities are supplied by the session layer and immutable per request.
package identity

import (
	"fmt"
	"strings"
)

// UserType is the coarse account category.
type UserType string

const (
	UserTypePublic     UserType = "public"
	UserTypeStaff      UserType = "staff"
	UserTypeAdmin      UserType = "admin"
	UserTypeSuperAdmin UserType = "super_admin"
)

// StaffUnit is the department that owns a review stage.
type StaffUnit string

const (
	UnitRegistry     StaffUnit = "registry"
	UnitRevenue      StaffUnit = "revenue"
	UnitCompliance   StaffUnit = "compliance"
	UnitFinance      StaffUnit = "finance"
	UnitDirectorate  StaffUnit = "directorate"
	UnitSystemsAdmin StaffUnit = "systems_admin"
)

// StaffPosition is the seniority level within a unit.
type StaffPosition string

const (
	PositionOfficer          StaffPosition = "officer"
	PositionManager          StaffPosition = "manager"
	PositionDirector         StaffPosition = "director"
	PositionManagingDirector StaffPosition = "managing_director"
)

var userTypes = map[UserType]struct{}{
	UserTypePublic:     {},
	UserTypeStaff:      {},
	UserTypeAdmin:      {},
	UserTypeSuperAdmin: {},
}

var staffUnits = map[StaffUnit]struct{}{
	UnitRegistry:     {},
	UnitRevenue:      {},
	UnitCompliance:   {},
	UnitFinance:      {},
	UnitDirectorate:  {},
	UnitSystemsAdmin: {},
}

var staffPositions = map[StaffPosition]struct{}{
	PositionOfficer:          {},
	PositionManager:          {},
	PositionDirector:         {},
	PositionManagingDirector: {},
}

// ParseUserType normalizes and validates a user type string.
func ParseUserType(raw string) (UserType, error) {
	t := UserType(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := userTypes[t]; !ok {
		return "", fmt.Errorf("identity: unknown user type %q", raw)
	}
	return t, nil
}

// ParseStaffUnit normalizes and validates a staff unit string.
func ParseStaffUnit(raw string) (StaffUnit, error) {
	u := StaffUnit(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := staffUnits[u]; !ok {
		return "", fmt.Errorf("identity: unknown staff unit %q", raw)
	}
	return u, nil
}

// ParseStaffPosition normalizes and validates a staff position string.
func ParseStaffPosition(raw string) (StaffPosition, error) {
	p := StaffPosition(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := staffPositions[p]; !ok {
		return "", fmt.Errorf("identity: unknown staff position %q", raw)
	}
	return p, nil
}

// Identity is the resolved authorization attributes of a caller.
// StaffUnit and StaffPosition are meaningful only when UserType is staff.
type Identity struct {
	UserID        string        `json:"user_id"`
	UserType      UserType      `json:"user_type"`
	StaffUnit     StaffUnit     `json:"staff_unit,omitempty"`
	StaffPosition StaffPosition `json:"staff_position,omitempty"`
}

// IsZero reports whether the identity carries no caller at all.
func (id Identity) IsZero() bool {
	return strings.TrimSpace(id.UserID) == ""
}

// IsStaff reports whether unit/position dimensions apply to this caller.
func (id Identity) IsStaff() bool {
	return id.UserType == UserTypeStaff
}

// IsSuperAdmin reports whether the caller bypasses all policy checks.
func (id Identity) IsSuperAdmin() bool {
	return id.UserType == UserTypeSuperAdmin
}

// Validate checks internal consistency: staff identities must carry a
// valid unit and position, non-staff identities must carry neither.
func (id Identity) Validate() error {
	if id.IsZero() {
		return fmt.Errorf("identity: user id is required")
	}
	if _, ok := userTypes[id.UserType]; !ok {
		return fmt.Errorf("identity: unknown user type %q", id.UserType)
	}
	if id.IsStaff() {
		if _, ok := staffUnits[id.StaffUnit]; !ok {
			return fmt.Errorf("identity: staff identity requires a valid unit, got %q", id.StaffUnit)
		}
		if _, ok := staffPositions[id.StaffPosition]; !ok {
			return fmt.Errorf("identity: staff identity requires a valid position, got %q", id.StaffPosition)
		}
		return nil
	}
	if id.StaffUnit != "" || id.StaffPosition != "" {
		return fmt.Errorf("identity: unit/position are staff-only attributes")
	}
	return nil
}
