// Package auth provides the authenticated actor descriptor and JWT parsing
// used to populate it from bearer tokens issued by the identity service.
package auth

// Role describes what an authenticated user is allowed to do.
type Role string

// Valid roles.
const (
	RoleVoter     Role = "voter"
	RoleCandidate Role = "candidate"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Verification describes the identity-verification status of a user.
// Only verified users may cast or hold votes.
type Verification string

// Verification statuses.
const (
	VerificationNone     Verification = "unverified"
	VerificationPending  Verification = "pending"
	VerificationVerified Verification = "verified"
)

// Actor is the authenticated, role-tagged user descriptor supplied by the
// auth layer to every engine operation.
type Actor struct {
	UserID       string       `json:"user_id"`
	Role         Role         `json:"role"`
	Verification Verification `json:"verification"`
}

// IsModerator reports whether the actor holds moderation privileges.
// Admins are a superset of moderators.
func (a Actor) IsModerator() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}

// IsVerified reports whether the actor has completed identity verification.
func (a Actor) IsVerified() bool {
	return a.Verification == VerificationVerified
}

// ValidRole reports whether the role string is one of the recognized roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleVoter, RoleCandidate, RoleModerator, RoleAdmin:
		return true
	}
	return false
}
