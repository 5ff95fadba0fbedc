// Package client provides the two SNAS client implementations described in
// spec.md §4.5: BusClient, which drives the NATS admin and user pub/sub
// APIs, and SocketClient, which speaks the framed Unix-socket protocol used
// by a host authentication-module integration.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cuemby/snas/pkg/secure"
	"github.com/cuemby/snas/pkg/types"
)

// Default subject prefixes, mirroring the servers' defaults in pkg/bus.
const (
	DefaultAdminPrefix = "snas.admin"
	DefaultUserPrefix  = "snas.user"
)

// BusClient issues request/reply calls against the admin and user pub/sub
// APIs over a shared *nats.Conn, following the one-subject-per-action shape
// of original_source/src/clients/nats.rs's NatsClient.
type BusClient struct {
	nc             *nats.Conn
	adminPrefix    string
	userPrefix     string
	requestTimeout time.Duration
}

// BusClientOption configures a BusClient beyond its required nats.Conn.
type BusClientOption func(*BusClient)

// WithAdminPrefix overrides the admin subject prefix. A trailing period is
// rejected, matching the validation the servers apply to their own prefix.
func WithAdminPrefix(prefix string) BusClientOption {
	return func(c *BusClient) { c.adminPrefix = prefix }
}

// WithUserPrefix overrides the user subject prefix.
func WithUserPrefix(prefix string) BusClientOption {
	return func(c *BusClient) { c.userPrefix = prefix }
}

// WithRequestTimeout overrides the per-request timeout (default 5s). Bus
// requests inherit this as their deadline, per spec.md §5.
func WithRequestTimeout(d time.Duration) BusClientOption {
	return func(c *BusClient) { c.requestTimeout = d }
}

// NewBusClient builds a BusClient over nc using the default subject
// prefixes unless overridden.
func NewBusClient(nc *nats.Conn, opts ...BusClientOption) (*BusClient, error) {
	c := &BusClient{
		nc:             nc,
		adminPrefix:    DefaultAdminPrefix,
		userPrefix:     DefaultUserPrefix,
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validatePrefix(c.adminPrefix); err != nil {
		return nil, fmt.Errorf("bus client: admin prefix: %w", err)
	}
	if err := validatePrefix(c.userPrefix); err != nil {
		return nil, fmt.Errorf("bus client: user prefix: %w", err)
	}
	return c, nil
}

func validatePrefix(prefix string) error {
	if prefix == "" || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("subject prefix %q must be non-empty and must not end with '.'", prefix)
	}
	return nil
}

func doRequest[Req any, Resp any](ctx context.Context, nc *nats.Conn, timeout time.Duration, subject string, req Req) (types.Envelope[Resp], error) {
	var zero types.Envelope[Resp]
	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("bus client: marshaling request for %q: %w", subject, err)
	}
	msg, err := nc.RequestWithContext(requestContext(ctx, timeout), subject, body)
	if err != nil {
		return zero, fmt.Errorf("bus client: request to %q: %w", subject, err)
	}
	var env types.Envelope[Resp]
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return zero, fmt.Errorf("bus client: decoding response from %q: %w", subject, err)
	}
	return env, nil
}

func requestContext(ctx context.Context, timeout time.Duration) context.Context {
	if _, ok := ctx.Deadline(); ok {
		return ctx
	}
	withTimeout, _ := context.WithTimeout(ctx, timeout) //nolint:lostcancel // caller's ctx governs the request's lifetime
	return withTimeout
}

// Verify authenticates username/password through the user bus API.
func (c *BusClient) Verify(ctx context.Context, username string, password secure.String) (types.VerifyResponse, error) {
	env, err := doRequest[types.VerifyRequest, types.VerifyResponse](ctx, c.nc, c.requestTimeout,
		c.userPrefix+".verify", types.VerifyRequest{Username: username, Password: password})
	if err != nil {
		return types.VerifyResponse{}, err
	}
	return env.IntoRequired()
}

// ChangePassword sets a new password through the user bus API.
func (c *BusClient) ChangePassword(ctx context.Context, username string, currentPassword, newPassword secure.String) error {
	env, err := doRequest[types.ChangePasswordRequest, types.Empty](ctx, c.nc, c.requestTimeout,
		c.userPrefix+".change_password", types.ChangePasswordRequest{
			Username:        username,
			CurrentPassword: currentPassword,
			NewPassword:     newPassword,
		})
	if err != nil {
		return err
	}
	return env.IntoEmpty()
}

// AddUser provisions a new account through the admin bus API.
func (c *BusClient) AddUser(ctx context.Context, username string, password secure.String, groups []string, forcePasswordChange bool) error {
	env, err := doRequest[types.AddUserRequest, types.Empty](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".add_user", types.AddUserRequest{
			Username:            username,
			Password:            password,
			Groups:              groups,
			ForcePasswordChange: forcePasswordChange,
		})
	if err != nil {
		return err
	}
	return env.IntoEmpty()
}

// GetUser fetches the admin-facing view of an account.
func (c *BusClient) GetUser(ctx context.Context, username string) (types.UserResponse, error) {
	env, err := doRequest[types.GetUserRequest, types.UserResponse](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".get_user", types.GetUserRequest{Username: username})
	if err != nil {
		return types.UserResponse{}, err
	}
	return env.IntoRequired()
}

// ListUsers enumerates every known username.
func (c *BusClient) ListUsers(ctx context.Context) ([]string, error) {
	env, err := doRequest[types.Empty, types.ListUsersResponse](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".list_users", types.Empty{})
	if err != nil {
		return nil, err
	}
	resp, err := env.IntoRequired()
	if err != nil {
		return nil, err
	}
	return resp.Usernames, nil
}

// RemoveUser deletes an account outright.
func (c *BusClient) RemoveUser(ctx context.Context, username string) error {
	env, err := doRequest[types.RemoveUserRequest, types.Empty](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".remove_user", types.RemoveUserRequest{Username: username})
	if err != nil {
		return err
	}
	return env.IntoEmpty()
}

// ResetPassword puts the account into the Reset phase and returns the
// one-time token the caller relays to the user out of band.
func (c *BusClient) ResetPassword(ctx context.Context, username string) (types.ResetPasswordResponse, error) {
	env, err := doRequest[types.ResetPasswordRequest, types.ResetPasswordResponse](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".reset_password", types.ResetPasswordRequest{Username: username})
	if err != nil {
		return types.ResetPasswordResponse{}, err
	}
	return env.IntoRequired()
}

// AddGroups adds groups to a user's membership, returning the complete
// post-change group list.
func (c *BusClient) AddGroups(ctx context.Context, username string, groups []string) ([]string, error) {
	env, err := doRequest[types.GroupModifyRequest, types.GroupModifyResponse](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".add_groups", types.GroupModifyRequest{Username: username, Groups: groups})
	if err != nil {
		return nil, err
	}
	resp, err := env.IntoRequired()
	if err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// RemoveGroups removes groups from a user's membership, returning the
// complete post-change group list.
func (c *BusClient) RemoveGroups(ctx context.Context, username string, groups []string) ([]string, error) {
	env, err := doRequest[types.GroupModifyRequest, types.GroupModifyResponse](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".remove_groups", types.GroupModifyRequest{Username: username, Groups: groups})
	if err != nil {
		return nil, err
	}
	resp, err := env.IntoRequired()
	if err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// SetApproval sets or clears the needs_approval flag on an account (see
// SPEC_FULL.md §10).
func (c *BusClient) SetApproval(ctx context.Context, username string, approved bool) error {
	env, err := doRequest[types.ApprovalRequest, types.Empty](ctx, c.nc, c.requestTimeout,
		c.adminPrefix+".set_approval", types.ApprovalRequest{Username: username, Approved: approved})
	if err != nil {
		return err
	}
	return env.IntoEmpty()
}
