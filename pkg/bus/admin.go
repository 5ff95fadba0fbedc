package bus

import (
	"context"

	"github.com/cuemby/snas/pkg/handlers"
	"github.com/cuemby/snas/pkg/types"
)

// NewAdminServer builds the admin pub/sub dispatcher: add_user, get_user,
// list_users, remove_user, reset_password, add_groups, remove_groups, and
// the supplemented set_approval action (see SPEC_FULL.md §10), each routed
// to its own namesake Handlers method. One source variant is documented to
// route remove_groups to the add_groups handler; that bug is not
// reproduced here.
func NewAdminServer(conn Conn, h *handlers.Handlers, prefix string) (*Server, error) {
	actions := map[string]action{
		"add_user": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.AddUserRequest) (types.Empty, error) {
				return types.Empty{}, h.AddUser(ctx, req)
			})
		},
		"get_user": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(_ context.Context, req types.GetUserRequest) (types.UserResponse, error) {
				return h.GetUser(req.Username)
			})
		},
		"list_users": func(_ context.Context, _ []byte) []byte {
			return mustMarshal(types.Ok(types.ListUsersResponse{Usernames: h.ListUsers()}))
		},
		"remove_user": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.RemoveUserRequest) (types.Empty, error) {
				return types.Empty{}, h.RemoveUser(ctx, req.Username)
			})
		},
		"reset_password": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.ResetPasswordRequest) (types.ResetPasswordResponse, error) {
				return h.ResetPassword(ctx, req)
			})
		},
		"add_groups": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.GroupModifyRequest) (types.GroupModifyResponse, error) {
				groups, err := h.AddGroups(ctx, req)
				return types.GroupModifyResponse{Groups: groups}, err
			})
		},
		"remove_groups": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.GroupModifyRequest) (types.GroupModifyResponse, error) {
				groups, err := h.RemoveGroups(ctx, req)
				return types.GroupModifyResponse{Groups: groups}, err
			})
		},
		"set_approval": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.ApprovalRequest) (types.Empty, error) {
				return types.Empty{}, h.SetApproval(ctx, req)
			})
		},
	}
	return newServer(conn, prefix, actions, "bus.admin")
}
