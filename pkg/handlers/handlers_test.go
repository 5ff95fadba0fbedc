package handlers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/snas/pkg/credstore"
	"github.com/cuemby/snas/pkg/credstore/credstoretest"
	"github.com/cuemby/snas/pkg/handlers"
	"github.com/cuemby/snas/pkg/secure"
	"github.com/cuemby/snas/pkg/snaserr"
	"github.com/cuemby/snas/pkg/types"
)

func newStore(t *testing.T) *credstore.CredStore {
	t.Helper()
	store, err := credstore.Open(context.Background(), credstoretest.New())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestAddUser_DefaultGroups(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, []string{"users", "vpn"}, time.Hour, time.Hour)

	err := h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	})
	require.NoError(t, err)

	got, err := h.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "vpn"}, got.Groups)
	assert.Equal(t, "none", got.ResetPhase)
}

func TestAddUser_DuplicateUsername(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	req := types.AddUserRequest{Username: "alice", Password: secure.NewString("hunter2")}
	require.NoError(t, h.AddUser(context.Background(), req))

	err := h.AddUser(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, snaserr.KindUsernameTaken, snaserr.KindOf(err))
}

func TestVerify_CorrectPassword(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, []string{"users"}, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	resp, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"users"}, resp.Groups)
	assert.False(t, resp.NeedsPasswordReset)
}

func TestVerify_WrongPassword(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	_, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("wrong"),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindInvalidCredentials, snaserr.KindOf(err))
}

func TestVerify_UnknownUser(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	_, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "ghost",
		Password: secure.NewString("anything"),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindUsernameDoesNotExist, snaserr.KindOf(err))
}

func TestResetPassword_TokenWorksUntilExpiry(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	clock := &now
	h := handlers.New(store, nil, time.Hour, time.Hour, handlers.WithClock(func() time.Time { return *clock }))

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	reset, err := h.ResetPassword(context.Background(), types.ResetPasswordRequest{Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, reset.Token)

	// Old password no longer works.
	_, err = h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	})
	require.Error(t, err)

	// Token works, and flags a forced change.
	resp, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString(reset.Token),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.True(t, resp.NeedsPasswordReset)
}

func TestResetPassword_ExpiresToLocked(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	clock := &now
	h := handlers.New(store, nil, time.Minute, time.Hour, handlers.WithClock(func() time.Time { return *clock }))

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	reset, err := h.ResetPassword(context.Background(), types.ResetPasswordRequest{Username: "alice"})
	require.NoError(t, err)

	later := now.Add(2 * time.Minute)
	clock = &later

	_, err = h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString(reset.Token),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindPasswordResetExpired, snaserr.KindOf(err))

	_, err = h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString(reset.Token),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindPasswordResetExpired, snaserr.KindOf(err))
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	reset, err := h.ResetPassword(context.Background(), types.ResetPasswordRequest{Username: "alice"})
	require.NoError(t, err)

	resp, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString(reset.Token),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.True(t, resp.NeedsPasswordReset)

	// The account is now InitialLogin: a second plain verify locks it
	// unconditionally, even with the same correct token.
	_, err = h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString(reset.Token),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindPasswordResetExpired, snaserr.KindOf(err))

	got, err := h.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "locked", got.ResetPhase)
}

func TestAddUser_ForcePasswordChange(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username:            "alice",
		Password:            secure.NewString("easy123"),
		Groups:              []string{"alice"},
		ForcePasswordChange: true,
	}))

	resp, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("easy123"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.True(t, resp.NeedsPasswordReset)

	err = h.ChangePassword(context.Background(), types.ChangePasswordRequest{
		Username:        "alice",
		CurrentPassword: secure.NewString("easy123"),
		NewPassword:     secure.NewString("easy1234"),
	})
	require.NoError(t, err)

	resp, err = h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("easy1234"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.False(t, resp.NeedsPasswordReset)
}

func TestVerifyEnvelope_DemotesAuthFailures(t *testing.T) {
	invalid := snaserr.New(snaserr.KindInvalidCredentials, "invalid username or password")
	env := handlers.VerifyEnvelope(types.VerifyResponse{}, invalid)
	assert.True(t, env.Success)
	assert.False(t, env.Response.Valid)
	assert.False(t, env.Response.NeedsPasswordReset)

	expired := snaserr.New(snaserr.KindPasswordResetExpired, "password reset has expired")
	env = handlers.VerifyEnvelope(types.VerifyResponse{}, expired)
	assert.True(t, env.Success)
	assert.False(t, env.Response.Valid)
	assert.True(t, env.Response.NeedsPasswordReset)

	systemErr := snaserr.New(snaserr.KindUsernameDoesNotExist, "username does not exist")
	env = handlers.VerifyEnvelope(types.VerifyResponse{}, systemErr)
	assert.False(t, env.Success)
}

func TestChangePassword_ClearsResetPhase(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	reset, err := h.ResetPassword(context.Background(), types.ResetPasswordRequest{Username: "alice"})
	require.NoError(t, err)

	err = h.ChangePassword(context.Background(), types.ChangePasswordRequest{
		Username:        "alice",
		CurrentPassword: secure.NewString(reset.Token),
		NewPassword:     secure.NewString("new-password"),
	})
	require.NoError(t, err)

	resp, err := h.Verify(context.Background(), types.VerifyRequest{
		Username: "alice",
		Password: secure.NewString("new-password"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.False(t, resp.NeedsPasswordReset)
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	err := h.ChangePassword(context.Background(), types.ChangePasswordRequest{
		Username:        "alice",
		CurrentPassword: secure.NewString("wrong"),
		NewPassword:     secure.NewString("new-password"),
	})
	require.Error(t, err)
	assert.Equal(t, snaserr.KindInvalidCredentials, snaserr.KindOf(err))
}

func TestAddAndRemoveGroups(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, []string{"users"}, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	groups, err := h.AddGroups(context.Background(), types.GroupModifyRequest{
		Username: "alice",
		Groups:   []string{"admins"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"admins", "users"}, groups)

	groups, err = h.RemoveGroups(context.Background(), types.GroupModifyRequest{
		Username: "alice",
		Groups:   []string{"users"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"admins"}, groups)
}

func TestRemoveUser(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{
		Username: "alice",
		Password: secure.NewString("hunter2"),
	}))

	require.NoError(t, h.RemoveUser(context.Background(), "alice"))

	_, err := h.GetUser("alice")
	require.Error(t, err)
	assert.Equal(t, snaserr.KindUsernameDoesNotExist, snaserr.KindOf(err))
}

func TestRemoveUser_Unknown(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	err := h.RemoveUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, snaserr.KindUsernameDoesNotExist, snaserr.KindOf(err))
}

func TestListUsers(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{Username: "alice", Password: secure.NewString("a")}))
	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{Username: "bob", Password: secure.NewString("b")}))

	assert.ElementsMatch(t, []string{"alice", "bob"}, h.ListUsers())
}

func TestSetApproval(t *testing.T) {
	store := newStore(t)
	h := handlers.New(store, nil, time.Hour, time.Hour)

	require.NoError(t, h.AddUser(context.Background(), types.AddUserRequest{Username: "alice", Password: secure.NewString("a")}))

	err := h.SetApproval(context.Background(), types.ApprovalRequest{Username: "alice", Approved: true})
	require.NoError(t, err)

	got, err := h.GetUser("alice")
	require.NoError(t, err)
	assert.True(t, got.NeedsApproval)
}
