package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"permitdesk.org/internal/audit"
	"permitdesk.org/internal/identity"
)

type tokenRequest struct {
	UserID        string `json:"user_id"`
	UserType      string `json:"user_type"`
	StaffUnit     string `json:"staff_unit,omitempty"`
	StaffPosition string `json:"staff_position,omitempty"`
	Password      string `json:"password,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	userType, err := identity.ParseUserType(req.UserType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	actor := identity.Identity{UserID: userID, UserType: userType}
	if strings.TrimSpace(req.StaffUnit) != "" {
		unit, err := identity.ParseStaffUnit(req.StaffUnit)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor.StaffUnit = unit
	}
	if strings.TrimSpace(req.StaffPosition) != "" {
		pos, err := identity.ParseStaffPosition(req.StaffPosition)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor.StaffPosition = pos
	}
	if err := actor.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Staff and admin tokens require the access passphrase when the
	// deployment configures one. Public applicant tokens are unaffected.
	if hash := os.Getenv("PERMITDESK_STAFF_PASSWORD_HASH"); hash != "" && userType != identity.UserTypePublic {
		if err := identity.VerifyPassword(hash, req.Password); err != nil {
			_ = audit.LogEvent(r.Context(), "auth.token.denied", map[string]any{
				"user_id":   userID,
				"user_type": string(userType),
			})
			respondUnauthorized(w, r, "invalid credentials")
			return
		}
	}

	token, err := identity.GenerateToken(actor, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    userID,
		"user_type":  string(userType),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
