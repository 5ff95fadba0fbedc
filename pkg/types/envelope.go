// Package types defines the wire contracts shared by every SNAS transport:
// the framed Unix socket protocol and the NATS admin/user subjects both
// exchange these types as JSON.
package types

import "github.com/cuemby/snas/pkg/snaserr"

// Envelope wraps every response SNAS sends back to a caller. Success is
// always set; Message carries a human-readable detail on failure (and is
// empty on success); Response is a pointer so "present" and "the zero
// value of T" are distinguishable on the wire — omitted entirely (nil)
// when the operation has no payload, or when a successful envelope was
// built without one by mistake.
type Envelope[T any] struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Response *T     `json:"response,omitempty"`
}

// Ok builds a successful Envelope carrying resp.
func Ok[T any](resp T) Envelope[T] {
	return Envelope[T]{Success: true, Response: &resp}
}

// Fail builds a failed Envelope. The message is taken directly from err,
// which callers are expected to have already produced via snaserr.
func Fail[T any](err error) Envelope[T] {
	return Envelope[T]{Success: false, Message: err.Error()}
}

// IntoRequired converts the envelope into (T, error), the shape most
// handler call sites want: on failure it synthesizes a *snaserr.Error of
// KindSystem carrying the envelope's message, since the original Kind was
// lost crossing the wire. A successful envelope with no Response is a
// programmer error, not a caller error: it means some handler replied
// success without ever attaching its payload.
func (e Envelope[T]) IntoRequired() (T, error) {
	var zero T
	if !e.Success {
		return zero, snaserr.New(snaserr.KindSystem, e.Message)
	}
	if e.Response == nil {
		return zero, snaserr.New(snaserr.KindSystem, "successful but contained no response")
	}
	return *e.Response, nil
}

// Empty is the Response payload for operations that have nothing to
// return beyond success/failure (e.g. RemoveUser, AddGroups' ack path
// when the caller only cares that it didn't error).
type Empty struct{}

// IntoEmpty converts an Envelope[Empty] into a plain error, discarding the
// payload. Used by clients for fire-and-forget admin actions.
func (e Envelope[T]) IntoEmpty() error {
	if !e.Success {
		return snaserr.New(snaserr.KindSystem, e.Message)
	}
	return nil
}
