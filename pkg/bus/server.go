package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/snas/pkg/log"
	"github.com/cuemby/snas/pkg/metrics"
	"github.com/cuemby/snas/pkg/snaserr"
	"github.com/cuemby/snas/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// action handles one action's JSON request body and returns the
// already-marshaled Envelope to publish back, or to drop if no reply
// subject was given.
type action func(ctx context.Context, body []byte) []byte

// Server dispatches queue-group-balanced pub/sub requests arriving on
// "<prefix>.*" to the per-action handler registered under the subject
// remainder, following the subject-stripping shape of
// original_source/src/servers/nats/admin.rs's subject routing.
type Server struct {
	conn    Conn
	prefix  string
	actions map[string]action
	logger  zerolog.Logger
	sub     Subscription
}

func newServer(conn Conn, prefix string, actions map[string]action, component string) (*Server, error) {
	if prefix == "" || strings.HasSuffix(prefix, ".") {
		return nil, fmt.Errorf("bus: subject prefix %q must be non-empty and must not end with '.'", prefix)
	}
	return &Server{
		conn:    conn,
		prefix:  prefix,
		actions: actions,
		logger:  log.WithComponent(component),
	}, nil
}

// Start subscribes the server to its subject space. Not safe to call twice.
func (s *Server) Start() error {
	sub, err := s.conn.QueueSubscribe(s.prefix+".*", s.prefix, s.dispatch)
	if err != nil {
		return fmt.Errorf("bus: subscribing to %q: %w", s.prefix, err)
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes, ending delivery of new messages. In-flight handlers
// are allowed to finish on their own.
func (s *Server) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *Server) dispatch(msg Message) {
	correlationID := uuid.NewString()
	logger := s.logger.With().Str("correlation_id", correlationID).Str("subject", msg.Subject()).Logger()

	actionName := strings.TrimPrefix(msg.Subject(), s.prefix+".")
	fn, ok := s.actions[actionName]
	if !ok {
		logger.Warn().Str("action", actionName).Msg("invalid bus action")
		metrics.BusRequestsTotal.WithLabelValues(s.prefix, actionName, "unknown_action").Inc()
		s.reply(msg, errorEnvelope(fmt.Sprintf("invalid api method %s", actionName)))
		return
	}

	logger.Debug().Str("action", actionName).Msg("dispatching bus request")
	timer := metrics.NewTimer()
	resp := fn(context.Background(), msg.Data())
	timer.ObserveDurationVec(metrics.BusRequestDuration, s.prefix, actionName)

	result := "ok"
	if !envelopeSucceeded(resp) {
		result = "error"
	}
	metrics.BusRequestsTotal.WithLabelValues(s.prefix, actionName, result).Inc()

	s.reply(msg, resp)
}

// reply publishes body to msg's reply subject. Per spec §4.4, a message
// with no reply subject is still fully handled; the response is just
// dropped instead of published.
func (s *Server) reply(msg Message, body []byte) {
	if msg.Reply() == "" {
		return
	}
	if err := s.conn.Publish(msg.Reply(), body); err != nil {
		s.logger.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to publish bus reply")
	}
}

func envelopeSucceeded(body []byte) bool {
	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Success
}

func errorEnvelope(message string) []byte {
	return mustMarshal(types.Fail[types.Empty](snaserr.New(snaserr.KindSystem, message)))
}

// decodeAndCall is the shared shape behind every admin/user action: decode
// body into Req, invoke call, and marshal the result as an Envelope[Resp].
// A body that fails to deserialize becomes a failed envelope rather than a
// panic, per spec §4.4.
func decodeAndCall[Req any, Resp any](ctx context.Context, body []byte, call func(context.Context, Req) (Resp, error)) []byte {
	var req Req
	if err := json.Unmarshal(body, &req); err != nil {
		return mustMarshal(types.Fail[Resp](snaserr.Wrap(err, "malformed request body")))
	}
	resp, err := call(ctx, req)
	if err != nil {
		return mustMarshal(types.Fail[Resp](err))
	}
	return mustMarshal(types.Ok(resp))
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// v is always one of our own JSON-safe Envelope[T] wire types.
		panic(err)
	}
	return b
}
