// Package handlers implements the account lifecycle and password-reset
// state machine on top of pkg/credstore. It is the single place that
// understands the reset-phase FSM; pkg/bus and pkg/socket only translate
// wire requests into Handlers calls and Handlers results into Envelopes.
package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/cuemby/snas/pkg/credstore"
	"github.com/cuemby/snas/pkg/secure"
	"github.com/cuemby/snas/pkg/security"
	"github.com/cuemby/snas/pkg/snaserr"
	"github.com/cuemby/snas/pkg/types"
)

// Handlers is the facade every transport (socket, bus) calls into. It is
// safe for concurrent use; all mutable state lives in the CredStore.
type Handlers struct {
	store           *credstore.CredStore
	defaultGroups   []string
	resetTTL        time.Duration
	initialLoginTTL time.Duration
	now             func() time.Time
}

// Option configures a Handlers beyond its required dependencies.
type Option func(*Handlers)

// WithClock overrides the time source, used by tests to exercise expiry
// and lockout transitions deterministically.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// New builds Handlers over store. defaultGroups is applied to AddUser
// requests that don't specify groups explicitly; resetTTL and
// initialLoginTTL bound how long a Reset or InitialLogin phase remains
// valid before the account transitions to Locked.
func New(store *credstore.CredStore, defaultGroups []string, resetTTL, initialLoginTTL time.Duration, opts ...Option) *Handlers {
	groups := append([]string(nil), defaultGroups...)
	sort.Strings(groups)
	h := &Handlers{
		store:           store,
		defaultGroups:   groups,
		resetTTL:        resetTTL,
		initialLoginTTL: initialLoginTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddUser provisions a new account. If req.Groups is empty, the server's
// configured default groups are used instead.
func (h *Handlers) AddUser(ctx context.Context, req types.AddUserRequest) error {
	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return snaserr.Wrap(err, "failed to hash password")
	}

	groups := req.Groups
	if len(groups) == 0 {
		groups = h.defaultGroups
	}

	var phase credstore.ResetPhase = credstore.PhaseNone{}
	if req.ForcePasswordChange {
		phase = credstore.PhaseReset{Expiry: h.now().Add(h.resetTTL)}
	}

	record := &credstore.UserRecord{
		Username:     req.Username,
		PasswordHash: hash,
		Groups:       groups,
		ResetPhase:   phase,
	}

	if err := h.store.Create(ctx, record); err != nil {
		if err == credstore.ErrAlreadyExists {
			return snaserr.New(snaserr.KindUsernameTaken, "username already exists")
		}
		return snaserr.Wrap(err, "failed to create user")
	}
	return nil
}

// GetUser returns the admin-facing view of an account.
func (h *Handlers) GetUser(username string) (types.UserResponse, error) {
	record, _, err := h.store.Get(username)
	if err != nil {
		return types.UserResponse{}, notFoundOrWrap(err)
	}
	return userResponse(record), nil
}

// ListUsers returns every known username.
func (h *Handlers) ListUsers() []string {
	return h.store.List()
}

// RemoveUser deletes an account outright.
func (h *Handlers) RemoveUser(ctx context.Context, username string) error {
	exists, err := h.store.Exists(ctx, username)
	if err != nil {
		return snaserr.Wrap(err, "failed to check user existence")
	}
	if !exists {
		return snaserr.New(snaserr.KindUsernameDoesNotExist, "username does not exist")
	}
	if err := h.store.Delete(ctx, username); err != nil {
		return snaserr.Wrap(err, "failed to remove user")
	}
	return nil
}

// SetApproval sets or clears the administrative needs_approval flag on an
// account. It does not gate Verify: an account with needs_approval=true
// still authenticates normally. The flag exists so an out-of-band
// provisioning workflow can track which self-registered accounts an admin
// has reviewed, without SNAS itself enforcing an approval gate.
func (h *Handlers) SetApproval(ctx context.Context, req types.ApprovalRequest) error {
	record, revision, err := h.store.Get(req.Username)
	if err != nil {
		return notFoundOrWrap(err)
	}
	record.NeedsApproval = req.Approved
	if err := h.store.Update(ctx, record, revision); err != nil {
		return snaserr.Wrap(err, "failed to update approval flag")
	}
	return nil
}

// AddGroups adds the given groups to a user's membership and returns the
// complete, post-change group list.
func (h *Handlers) AddGroups(ctx context.Context, req types.GroupModifyRequest) ([]string, error) {
	return h.modifyGroups(ctx, req, func(existing map[string]struct{}) {
		for _, g := range req.Groups {
			existing[g] = struct{}{}
		}
	})
}

// RemoveGroups removes the given groups from a user's membership and
// returns the complete, post-change group list.
func (h *Handlers) RemoveGroups(ctx context.Context, req types.GroupModifyRequest) ([]string, error) {
	return h.modifyGroups(ctx, req, func(existing map[string]struct{}) {
		for _, g := range req.Groups {
			delete(existing, g)
		}
	})
}

func (h *Handlers) modifyGroups(ctx context.Context, req types.GroupModifyRequest, mutate func(map[string]struct{})) ([]string, error) {
	record, revision, err := h.store.Get(req.Username)
	if err != nil {
		return nil, notFoundOrWrap(err)
	}

	set := make(map[string]struct{}, len(record.Groups))
	for _, g := range record.Groups {
		set[g] = struct{}{}
	}
	mutate(set)

	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	record.Groups = groups

	if err := h.store.Update(ctx, record, revision); err != nil {
		return nil, snaserr.Wrap(err, "failed to update groups")
	}
	return groups, nil
}

// ResetPassword puts the account into the Reset phase and issues a
// one-time token whose hash replaces the stored password hash. The
// previous password is no longer valid; the token is. This unconditionally
// overwrites whatever reset phase the account was already in — an account
// already Locked or mid-Reset can be reset again without an admin having
// to clear the prior state first.
func (h *Handlers) ResetPassword(ctx context.Context, req types.ResetPasswordRequest) (types.ResetPasswordResponse, error) {
	record, revision, err := h.store.Get(req.Username)
	if err != nil {
		return types.ResetPasswordResponse{}, notFoundOrWrap(err)
	}

	token, err := security.GenerateResetToken()
	if err != nil {
		return types.ResetPasswordResponse{}, snaserr.Wrap(err, "failed to generate reset token")
	}
	hash, err := security.HashPassword(secure.NewString(token))
	if err != nil {
		return types.ResetPasswordResponse{}, snaserr.Wrap(err, "failed to hash reset token")
	}

	expiry := h.now().Add(h.resetTTL)
	record.PasswordHash = hash
	record.ResetPhase = credstore.PhaseReset{Expiry: expiry}

	if err := h.store.Update(ctx, record, revision); err != nil {
		return types.ResetPasswordResponse{}, snaserr.Wrap(err, "failed to persist reset")
	}

	return types.ResetPasswordResponse{Token: token, ExpiresAt: expiry.Unix()}, nil
}

// Verify authenticates username/password and reports group membership.
// Behavior depends on the account's reset phase:
//
//   - None: the stored password must match.
//   - Reset: the presented password must match the reset token's hash; on
//     success the account moves to InitialLogin (same expiry) and
//     NeedsPasswordReset is true in the response. Past the reset's expiry
//     the account moves to Locked and verification fails regardless of
//     the password given.
//   - InitialLogin: a plain Verify (as opposed to ChangePassword) is only
//     valid once. Any Verify call while InitialLogin — success or
//     failure, expired or not — moves the account straight to Locked and
//     fails. This is the documented "single-use temporary password"
//     semantics: the only way to clear InitialLogin is ChangePassword.
//   - Locked: verification always fails; no password is checked.
func (h *Handlers) Verify(ctx context.Context, req types.VerifyRequest) (types.VerifyResponse, error) {
	record, revision, err := h.store.Get(req.Username)
	if err != nil {
		return types.VerifyResponse{}, notFoundOrWrap(err)
	}

	switch phase := record.ResetPhase.(type) {
	case credstore.PhaseNone:
		ok, err := security.VerifyPassword(req.Password, record.PasswordHash)
		if err != nil {
			return types.VerifyResponse{}, snaserr.Wrap(err, "failed to verify password")
		}
		if !ok {
			return types.VerifyResponse{}, snaserr.New(snaserr.KindInvalidCredentials, "invalid username or password")
		}
		return types.VerifyResponse{Valid: true, Groups: record.Groups}, nil

	case credstore.PhaseReset:
		if h.now().After(phase.Expiry) {
			record.ResetPhase = credstore.PhaseLocked{}
			_ = h.store.Update(ctx, record, revision)
			return types.VerifyResponse{}, snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")
		}
		ok, err := security.VerifyPassword(req.Password, record.PasswordHash)
		if err != nil {
			return types.VerifyResponse{}, snaserr.Wrap(err, "failed to verify password")
		}
		if !ok {
			return types.VerifyResponse{}, snaserr.New(snaserr.KindInvalidCredentials, "invalid username or password")
		}
		record.ResetPhase = credstore.PhaseInitialLogin{Expiry: phase.Expiry}
		if err := h.store.Update(ctx, record, revision); err != nil {
			return types.VerifyResponse{}, snaserr.Wrap(err, "failed to persist initial-login transition")
		}
		return types.VerifyResponse{Valid: true, Groups: record.Groups, NeedsPasswordReset: true}, nil

	case credstore.PhaseInitialLogin:
		// A plain verify during InitialLogin is single-use: it discards
		// the remaining expiry and locks the account unconditionally,
		// regardless of whether the password given is even correct. Only
		// ChangePassword can clear InitialLogin successfully.
		record.ResetPhase = credstore.PhaseLocked{}
		_ = h.store.Update(ctx, record, revision)
		return types.VerifyResponse{}, snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")

	case credstore.PhaseLocked:
		return types.VerifyResponse{}, snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")

	default:
		return types.VerifyResponse{}, snaserr.New(snaserr.KindSystem, "unknown reset phase")
	}
}

// ChangePassword lets a user (including one mid-reset or mid-initial-login)
// set a new password, proving knowledge of the current one. On success the
// account always returns to PhaseNone, regardless of which reset phase it
// was in. Unlike Verify, ChangePassword runs the FSM in "change" mode:
// Reset and InitialLogin do not lock on a mere call — only on an expiry
// that has already passed, in which case the account is moved to Locked
// the same as Verify would.
func (h *Handlers) ChangePassword(ctx context.Context, req types.ChangePasswordRequest) error {
	record, revision, err := h.store.Get(req.Username)
	if err != nil {
		return notFoundOrWrap(err)
	}

	switch phase := record.ResetPhase.(type) {
	case credstore.PhaseLocked:
		return snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")
	case credstore.PhaseReset:
		if h.now().After(phase.Expiry) {
			record.ResetPhase = credstore.PhaseLocked{}
			_ = h.store.Update(ctx, record, revision)
			return snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")
		}
	case credstore.PhaseInitialLogin:
		if h.now().After(phase.Expiry) {
			record.ResetPhase = credstore.PhaseLocked{}
			_ = h.store.Update(ctx, record, revision)
			return snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")
		}
	}

	ok, err := security.VerifyPassword(req.CurrentPassword, record.PasswordHash)
	if err != nil {
		return snaserr.Wrap(err, "failed to verify current password")
	}
	if !ok {
		return snaserr.New(snaserr.KindInvalidCredentials, "invalid username or password")
	}

	newHash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return snaserr.Wrap(err, "failed to hash new password")
	}

	record.PasswordHash = newHash
	record.ResetPhase = credstore.PhaseNone{}

	if err := h.store.Update(ctx, record, revision); err != nil {
		return snaserr.Wrap(err, "failed to persist new password")
	}
	return nil
}

// VerifyEnvelope builds the wire envelope for a Verify call, applying the
// demotion spec.md requires: InvalidCredentials and PasswordResetExpired
// are not protocol-level failures — a caller needs to distinguish "the
// credentials didn't work" from "the call itself failed" — so they travel
// as a successful Envelope carrying VerifyResponse{Valid:false,...}. Every
// other error (UsernameDoesNotExist, SystemError) becomes a failed
// Envelope. Both pkg/bus and pkg/socket call this so the demotion rule
// lives in exactly one place.
func VerifyEnvelope(resp types.VerifyResponse, err error) types.Envelope[types.VerifyResponse] {
	if err == nil {
		return types.Ok(resp)
	}
	switch snaserr.KindOf(err) {
	case snaserr.KindInvalidCredentials:
		return types.Ok(types.VerifyResponse{Valid: false, Message: err.Error()})
	case snaserr.KindPasswordResetExpired:
		return types.Ok(types.VerifyResponse{Valid: false, NeedsPasswordReset: true, Message: err.Error()})
	default:
		return types.Fail[types.VerifyResponse](err)
	}
}

func userResponse(record *credstore.UserRecord) types.UserResponse {
	return types.UserResponse{
		Username:      record.Username,
		Groups:        record.Groups,
		NeedsApproval: record.NeedsApproval,
		ResetPhase:    credstore.PhaseName(record.ResetPhase),
	}
}

func notFoundOrWrap(err error) error {
	if err == credstore.ErrNotFound {
		return snaserr.New(snaserr.KindUsernameDoesNotExist, "username does not exist")
	}
	return snaserr.Wrap(err, "credential store error")
}
