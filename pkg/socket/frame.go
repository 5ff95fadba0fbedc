// Package socket implements the framed, ASCII-delimited request/response
// protocol spoken over a Unix domain socket by the host authentication
// module integration. It is the lowest-level, highest-scrutiny transport in
// SNAS: a malformed peer must never be able to wedge the server, and a
// slow or hostile peer must never hold a goroutine hostage forever.
package socket

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cuemby/snas/pkg/types"
)

// Wire framing constants, shared by server and client.
var (
	requestIdentifier  = []byte("REQ\n")
	responseIdentifier = []byte("RES\n")
	terminator         = []byte("\nEND\n")
)

const (
	// tokenTimeout bounds every read after the initial identifier: the
	// method line, the JSON body, and the terminator each get their own
	// window before the connection is judged to have sent a bad request.
	tokenTimeout = 500 * time.Millisecond
	// garbageTimeout bounds each read while draining a desynchronized
	// peer back to a frame boundary.
	garbageTimeout = 300 * time.Millisecond
	// maxGarbage is the most we will discard trying to resynchronize
	// before giving up and closing the connection.
	maxGarbage = 2048
)

// errBadRequest marks a frame-level parse failure that the server recovers
// from by sending an error envelope and attempting resync, as opposed to
// an I/O error that ends the connection outright.
type errBadRequest struct{ reason string }

func (e *errBadRequest) Error() string { return "bad request: " + e.reason }

// frame is one parsed request off the wire: a method name and its raw JSON
// body, not yet decoded into a concrete request type (the caller knows
// which type each method name decodes to).
type frame struct {
	method string
	body   []byte
}

// readRequestFrame reads one REQ frame from r. The identifier itself is
// read with no deadline (the server blocks waiting for the next request on
// an idle, persistent connection); every token after it is deadlined via
// deadline.
func readRequestFrame(r *bufio.Reader, conn net.Conn) (*frame, error) {
	ident := make([]byte, len(requestIdentifier))
	if _, err := io.ReadFull(r, ident); err != nil {
		return nil, err
	}
	if !bytes.Equal(ident, requestIdentifier) {
		return nil, &errBadRequest{reason: "unexpected identifier"}
	}

	if err := conn.SetReadDeadline(time.Now().Add(tokenTimeout)); err != nil {
		return nil, err
	}
	method, err := r.ReadString('\n')
	if err != nil {
		return nil, deadlineAwareBadRequest(err, "reading method")
	}
	method = method[:len(method)-1]

	body, err := r.ReadString('\r')
	if err != nil {
		return nil, deadlineAwareBadRequest(err, "reading body")
	}
	body = body[:len(body)-1]

	tail := make([]byte, len(terminator))
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, deadlineAwareBadRequest(err, "reading terminator")
	}
	if !bytes.Equal(tail, terminator) {
		return nil, &errBadRequest{reason: "malformed terminator"}
	}

	return &frame{method: method, body: []byte(body)}, nil
}

// deadlineAwareBadRequest reclassifies a timeout as a recoverable bad
// request; any other I/O error (EOF, reset, etc.) is returned unchanged so
// the caller treats it as connection-ending.
func deadlineAwareBadRequest(err error, reason string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &errBadRequest{reason: reason + " timed out"}
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return &errBadRequest{reason: fmt.Sprintf("%s: %v", reason, err)}
}

// terminatorFailure is the KMP failure function for terminator, letting
// drainGarbage locate it one byte at a time without ever reading past its
// final byte — reading into a scratch buffer and scanning for a match
// after the fact (the obvious approach) risks pulling the start of the
// next, valid request into that buffer and discarding it along with the
// garbage whenever the two happen to arrive in the same underlying Read.
var terminatorFailure = kmpFailure(terminator)

func kmpFailure(pattern []byte) []int {
	failure := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = failure[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		failure[i] = k
	}
	return failure
}

// drainGarbage attempts to resynchronize a connection after a bad request
// by discarding bytes, one at a time, up to maxGarbage, each byte bounded
// by garbageTimeout. It stops the instant terminator has been matched,
// leaving any bytes after it (the start of the next request, if the peer
// pipelined one) untouched in r's buffer for the next readRequestFrame
// call. It reports whether resync succeeded or the limit was hit first.
func drainGarbage(r *bufio.Reader, conn net.Conn) error {
	matched := 0
	for discarded := 0; discarded < maxGarbage; discarded++ {
		if err := conn.SetReadDeadline(time.Now().Add(garbageTimeout)); err != nil {
			return err
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		for matched > 0 && b != terminator[matched] {
			matched = terminatorFailure[matched-1]
		}
		if b == terminator[matched] {
			matched++
		}
		if matched == len(terminator) {
			return nil
		}
	}
	return fmt.Errorf("socket: garbage limit exceeded (%d bytes)", maxGarbage)
}

// writeEnvelope writes a RES frame carrying env as JSON.
func writeEnvelope[T any](conn net.Conn, env types.Envelope[T]) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Write(responseIdentifier)
	buf.Write(body)
	buf.Write(terminator)
	_, err = conn.Write(buf.Bytes())
	return err
}

// readResponseFrame reads one RES frame, used by the client. Unlike the
// server's request parser this has no resync behavior: a malformed
// response is simply an error surfaced to the caller. JSON produced by
// encoding/json.Marshal never contains a literal newline, so the body is
// exactly the bytes up to the first '\n' (which opens the "\nEND\n" tail).
func readResponseFrame(r *bufio.Reader) ([]byte, error) {
	ident := make([]byte, len(responseIdentifier))
	if _, err := io.ReadFull(r, ident); err != nil {
		return nil, err
	}
	if !bytes.Equal(ident, responseIdentifier) {
		return nil, fmt.Errorf("socket: malformed response identifier")
	}

	body, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("socket: reading response body: %w", err)
	}
	body = body[:len(body)-1]

	tail := make([]byte, len("END\n"))
	if _, err := io.ReadFull(r, tail); err != nil {
		return nil, fmt.Errorf("socket: reading response terminator: %w", err)
	}
	if !bytes.Equal(tail, []byte("END\n")) {
		return nil, fmt.Errorf("socket: malformed response terminator")
	}

	return body, nil
}
