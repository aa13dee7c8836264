// Package policy evaluates declarative access policies against caller
// identities. A policy is static configuration built at startup; the
// evaluator is a total function with no side effects.
package policy

import "permitdesk.org/internal/identity"

// AccessPolicy is a named rule set. A nil or empty allow-list means the
// corresponding dimension is unrestricted.
type AccessPolicy struct {
	Name             string
	AllowedRoles     []identity.UserType
	AllowedUnits     []identity.StaffUnit
	AllowedPositions []identity.StaffPosition
}

// Authorize decides whether the identity satisfies the policy.
// A zero identity is unauthorized; super_admin bypasses every check;
// unit and position are evaluated only for staff identities.
func Authorize(id identity.Identity, p AccessPolicy) bool {
	if id.IsZero() {
		return false
	}
	if id.IsSuperAdmin() {
		return true
	}
	if len(p.AllowedRoles) > 0 && !containsRole(p.AllowedRoles, id.UserType) {
		return false
	}
	if !id.IsStaff() {
		return true
	}
	if len(p.AllowedUnits) > 0 && !containsUnit(p.AllowedUnits, id.StaffUnit) {
		return false
	}
	if len(p.AllowedPositions) > 0 && !containsPosition(p.AllowedPositions, id.StaffPosition) {
		return false
	}
	return true
}

func containsRole(list []identity.UserType, v identity.UserType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsUnit(list []identity.StaffUnit, v identity.StaffUnit) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPosition(list []identity.StaffPosition, v identity.StaffPosition) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
