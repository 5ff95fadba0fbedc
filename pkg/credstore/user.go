package credstore

import "time"

// ResetPhase is the small state machine tracking where a user sits in the
// password-reset lifecycle. It is a closed set of four variants, modeled as
// an interface + marker types rather than a single struct with an unused
// Expiry field, so a PhaseNone or PhaseLocked value can never carry a
// meaningless timestamp.
type ResetPhase interface {
	isResetPhase()
}

// PhaseNone is the steady state: the account authenticates with its stored
// password and is not mid-reset.
type PhaseNone struct{}

// PhaseReset means an admin issued a reset token; the account must change
// its password with that token before Expiry to regain access via normal
// login.
type PhaseReset struct {
	Expiry time.Time
}

// PhaseInitialLogin means the account was just created (or its reset token
// was redeemed) and must change its password before Expiry. Unlike
// PhaseReset, the current password IS valid for Verify, so the user can
// log in and be routed to a forced change.
type PhaseInitialLogin struct {
	Expiry time.Time
}

// PhaseLocked means the reset/initial-login window elapsed without a
// password change; the account cannot authenticate until an admin resets
// it again.
type PhaseLocked struct{}

func (PhaseNone) isResetPhase()          {}
func (PhaseReset) isResetPhase()         {}
func (PhaseInitialLogin) isResetPhase()  {}
func (PhaseLocked) isResetPhase()        {}

// PhaseName renders a ResetPhase as the string used in UserResponse.ResetPhase.
func PhaseName(p ResetPhase) string {
	switch p.(type) {
	case PhaseReset:
		return "reset"
	case PhaseInitialLogin:
		return "initial_login"
	case PhaseLocked:
		return "locked"
	default:
		return "none"
	}
}

// UserRecord is the value stored under each username key in the credential
// bucket. It is the unit the binary codec encodes and decodes.
type UserRecord struct {
	Username      string
	PasswordHash  string
	Groups        []string
	NeedsApproval bool
	ResetPhase    ResetPhase
}

func unixTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
