package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/cuemby/snas/pkg/socket"
	"github.com/cuemby/snas/pkg/types"
)

// Wire framing constants. These must match pkg/socket/frame.go exactly;
// they are re-declared here rather than imported because pkg/socket keeps
// its framing helpers unexported (the server is the only thing meant to
// parse requests, and a malformed client is exactly the thing that package
// defends against). SocketClient only ever produces requests and consumes
// responses, the easier half of the protocol, so duplicating those few
// bytes locally is simpler than exporting server-side parsing internals for
// one caller.
var (
	requestIdentifier  = []byte("REQ\n")
	responseIdentifier = []byte("RES\n")
	terminator         = []byte("\nEND\n")
)

// SocketClient speaks the socket package's framed protocol over a
// persistent Unix connection, reconnecting once on a classified
// connection error before giving up — the Go analogue of
// original_source/src/clients/socket.rs's SocketClient, whose reconnect()
// inspects the io::Error kind from a failed write and retries exactly
// once.
type SocketClient struct {
	mu   sync.Mutex
	path string
	conn net.Conn
}

// NewSocketClient dials path once up front so misconfiguration is visible
// immediately rather than on the first request.
func NewSocketClient(path string) (*SocketClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("socket client: dialing %q: %w", path, err)
	}
	return &SocketClient{path: path, conn: conn}, nil
}

// Close releases the underlying connection.
func (c *SocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Verify authenticates username/password through the socket protocol.
func (c *SocketClient) Verify(req types.VerifyRequest) (types.VerifyResponse, error) {
	var env types.Envelope[types.VerifyResponse]
	if err := c.call("verify", req, &env); err != nil {
		return types.VerifyResponse{}, err
	}
	return env.IntoRequired()
}

// ChangePassword sets a new password through the socket protocol.
func (c *SocketClient) ChangePassword(req types.ChangePasswordRequest) error {
	var env types.Envelope[types.Empty]
	if err := c.call("change_password", req, &env); err != nil {
		return err
	}
	return env.IntoEmpty()
}

// call sends method+req as a REQ frame and decodes the RES frame into out,
// reconnecting once if the write or read fails with a classified
// connection error.
func (c *SocketClient) call(method string, req any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("socket client: marshaling %s request: %w", method, err)
	}

	resp, err := c.sendLocked(method, body)
	if err != nil && isReconnectable(err) {
		if reErr := c.reconnectLocked(); reErr != nil {
			return fmt.Errorf("socket client: reconnecting after %v: %w", err, reErr)
		}
		resp, err = c.sendLocked(method, body)
	}
	if err != nil {
		return fmt.Errorf("socket client: %s: %w", method, err)
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("socket client: decoding %s response: %w", method, err)
	}
	return nil
}

func (c *SocketClient) sendLocked(method string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(requestIdentifier)
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte('\r')
	buf.Write(terminator)

	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(c.conn))
}

func (c *SocketClient) reconnectLocked() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	conn, err := net.Dial("unix", c.path)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// readResponse parses a RES frame, mirroring pkg/socket's
// readResponseFrame without depending on its unexported internals.
func readResponse(r *bufio.Reader) ([]byte, error) {
	ident := make([]byte, len(responseIdentifier))
	if _, err := io.ReadFull(r, ident); err != nil {
		return nil, err
	}
	if !bytes.Equal(ident, responseIdentifier) {
		return nil, fmt.Errorf("socket client: malformed response identifier")
	}

	body, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("socket client: reading response body: %w", err)
	}
	body = body[:len(body)-1]

	tail := make([]byte, len("END\n"))
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, fmt.Errorf("socket client: reading response terminator: %w", err)
	}
	if !bytes.Equal(tail, []byte("END\n")) {
		return nil, fmt.Errorf("socket client: malformed response terminator")
	}
	return body, nil
}

// isReconnectable reports whether err indicates the connection itself is
// dead rather than a one-off application error, mirroring the ErrorKind
// match in original_source/src/clients/socket.rs's reconnect(): EOF, a
// broken pipe, a reset or aborted connection, not-connected, an
// interrupted syscall, or a read/write timeout.
func isReconnectable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENOTCONN) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EINTR) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// DefaultSocketPath re-exports pkg/socket's default path so callers don't
// need to import that package solely for this constant.
const DefaultSocketPath = socket.DefaultSocketPath
