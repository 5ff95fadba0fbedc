package bus

import (
	"context"
	"encoding/json"

	"github.com/cuemby/snas/pkg/handlers"
	"github.com/cuemby/snas/pkg/snaserr"
	"github.com/cuemby/snas/pkg/types"
)

// NewUserServer builds the user pub/sub dispatcher: verify and
// change_password.
func NewUserServer(conn Conn, h *handlers.Handlers, prefix string) (*Server, error) {
	actions := map[string]action{
		// verify uses handlers.VerifyEnvelope directly instead of
		// decodeAndCall: invalid credentials and an expired reset must
		// travel as a successful Envelope, per spec §4.2.
		"verify": func(ctx context.Context, body []byte) []byte {
			var req types.VerifyRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return mustMarshal(types.Fail[types.VerifyResponse](snaserr.Wrap(err, "malformed request body")))
			}
			resp, err := h.Verify(ctx, req)
			return mustMarshal(handlers.VerifyEnvelope(resp, err))
		},
		"change_password": func(ctx context.Context, body []byte) []byte {
			return decodeAndCall(ctx, body, func(ctx context.Context, req types.ChangePasswordRequest) (types.Empty, error) {
				return types.Empty{}, h.ChangePassword(ctx, req)
			})
		},
	}
	return newServer(conn, prefix, actions, "bus.user")
}
