package types

import "github.com/cuemby/snas/pkg/secure"

// VerifyRequest is sent by the PAM socket module and the user-facing bus
// subject to authenticate a username/password pair.
type VerifyRequest struct {
	Username string        `json:"username"`
	Password secure.String `json:"password"`
}

// VerifyResponse reports whether the credentials were valid, a
// human-readable detail (set on failure; empty on success), the groups the
// user belongs to (for PAM group-based authorization), and whether the
// account is mid-reset and the caller must be routed to a password change
// before being let in. Unlike most responses, VerifyResponse is returned
// even when Valid is false: invalid credentials and an expired reset are
// not protocol errors, so they travel inside a successful Envelope rather
// than as Envelope.Message (see pkg/handlers.VerifyEnvelope).
type VerifyResponse struct {
	Valid              bool     `json:"valid"`
	Message            string   `json:"message,omitempty"`
	Groups             []string `json:"groups,omitempty"`
	NeedsPasswordReset bool     `json:"needs_password_reset"`
}

// ChangePasswordRequest lets an already-authenticated user (including one
// mid-reset) set a new password, proving knowledge of the current one.
type ChangePasswordRequest struct {
	Username        string        `json:"username"`
	CurrentPassword secure.String `json:"current_password"`
	NewPassword     secure.String `json:"new_password"`
}

// AddUserRequest is an admin-only action that provisions a new account.
// Groups defaults to the server's configured default groups when nil.
type AddUserRequest struct {
	Username            string        `json:"username"`
	Password            secure.String `json:"password"`
	Groups              []string      `json:"groups,omitempty"`
	ForcePasswordChange bool          `json:"force_password_change,omitempty"`
}

// GetUserRequest looks up a single account by name.
type GetUserRequest struct {
	Username string `json:"username"`
}

// UserResponse is the admin-facing view of an account: never includes the
// password hash.
type UserResponse struct {
	Username      string   `json:"username"`
	Groups        []string `json:"groups"`
	NeedsApproval bool     `json:"needs_approval"`
	ResetPhase    string   `json:"reset_phase"`
}

// ListUsersResponse enumerates every username in the store.
type ListUsersResponse struct {
	Usernames []string `json:"usernames"`
}

// RemoveUserRequest deletes an account by name.
type RemoveUserRequest struct {
	Username string `json:"username"`
}

// ResetPasswordRequest is an admin action that puts the account into the
// Reset reset-phase and issues a one-time token.
type ResetPasswordRequest struct {
	Username string `json:"username"`
}

// ResetPasswordResponse carries the one-time token the admin relays to the
// user out of band (it is never stored in plaintext) and the unix time at
// which that token stops being accepted.
type ResetPasswordResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// GroupModifyRequest is shared by AddGroups and RemoveGroups; which
// operation it means is determined by the subject/frame tag it arrived
// on, not by a field on the struct.
type GroupModifyRequest struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// GroupModifyResponse returns the complete group membership after the
// change, so a caller doing several modifications in sequence doesn't need
// a separate GetUser round trip to confirm the result.
type GroupModifyResponse struct {
	Groups []string `json:"groups"`
}

// ApprovalRequest sets or clears the needs_approval flag on an account.
type ApprovalRequest struct {
	Username string `json:"username"`
	Approved bool   `json:"approved"`
}
