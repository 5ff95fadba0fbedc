package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"

	"github.com/cuemby/snas/pkg/handlers"
	"github.com/cuemby/snas/pkg/log"
	"github.com/cuemby/snas/pkg/metrics"
	"github.com/cuemby/snas/pkg/snaserr"
	"github.com/cuemby/snas/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSocketPath is where the server listens when no override is given.
const DefaultSocketPath = "/var/run/snas/user.sock"

// Server accepts connections on a Unix domain socket and serves verify and
// change_password requests framed per the wire protocol in frame.go.
type Server struct {
	handlers *handlers.Handlers
	listener net.Listener
	logger   zerolog.Logger
}

// Listen unlinks any stale path, binds a Unix socket at path, and chmods it
// to 0700 so only the server's owning principal may connect — the same
// unlink/bind/chmod sequence as original_source/src/servers/socket.rs's
// get_socket.
func Listen(path string, h *handlers.Handlers) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o700); err != nil {
		ln.Close()
		return nil, err
	}
	return &Server{
		handlers: h,
		listener: ln,
		logger:   log.WithComponent("socket"),
	}, nil
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine. It returns once Accept fails, which happens when Close
// is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the listener, ending Serve's accept loop. Connections
// already accepted are allowed to finish their current request.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	logger := log.WithConnID(connID)
	logger.Info().Msg("socket connection opened")

	metrics.SocketConnectionsActive.Inc()
	defer metrics.SocketConnectionsActive.Dec()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		f, err := readRequestFrame(r, conn)
		if err != nil {
			var bad *errBadRequest
			if errors.As(err, &bad) {
				logger.Warn().Str("reason", bad.reason).Msg("bad request frame")
				metrics.SocketBadRequestsTotal.Inc()
				_ = writeEnvelope(conn, types.Fail[types.Empty](snaserr.New(snaserr.KindSystem, bad.Error())))
				if drainErr := drainGarbage(r, conn); drainErr != nil {
					logger.Warn().Err(drainErr).Msg("failed to resynchronize after bad request; closing connection")
					return
				}
				continue
			}
			if err == io.EOF {
				logger.Debug().Msg("socket connection closed by peer")
			} else {
				logger.Warn().Err(err).Msg("socket connection I/O error")
			}
			return
		}

		s.dispatch(conn, logger, f)
	}
}

func (s *Server) dispatch(conn net.Conn, logger zerolog.Logger, f *frame) {
	result := "ok"
	defer func() {
		metrics.SocketRequestsTotal.WithLabelValues(f.method, result).Inc()
	}()

	switch f.method {
	case "verify":
		var req types.VerifyRequest
		if err := json.Unmarshal(f.body, &req); err != nil {
			result = "bad_request"
			s.writeBadRequest(conn, logger, err)
			return
		}
		resp, err := s.handlers.Verify(context.Background(), req)
		env := handlers.VerifyEnvelope(resp, err)
		if !env.Success {
			result = "error"
		}
		if writeErr := writeEnvelope(conn, env); writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to write verify response")
		}

	case "change_password":
		var req types.ChangePasswordRequest
		if err := json.Unmarshal(f.body, &req); err != nil {
			result = "bad_request"
			s.writeBadRequest(conn, logger, err)
			return
		}
		err := s.handlers.ChangePassword(context.Background(), req)
		var env types.Envelope[types.Empty]
		if err != nil {
			result = "error"
			env = types.Fail[types.Empty](err)
		} else {
			env = types.Ok(types.Empty{})
		}
		if writeErr := writeEnvelope(conn, env); writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to write change_password response")
		}

	default:
		result = "unknown_method"
		logger.Warn().Str("method", f.method).Msg("unsupported socket method")
		_ = writeEnvelope(conn, types.Fail[types.Empty](
			snaserr.New(snaserr.KindSystem, "unsupported method: "+f.method)))
	}
}

func (s *Server) writeBadRequest(conn net.Conn, logger zerolog.Logger, err error) {
	metrics.SocketBadRequestsTotal.Inc()
	if writeErr := writeEnvelope(conn, types.Fail[types.Empty](snaserr.Wrap(err, "malformed request body"))); writeErr != nil {
		logger.Warn().Err(writeErr).Msg("failed to write bad-request response")
	}
}
