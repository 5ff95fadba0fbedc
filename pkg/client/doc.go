/*
Package client provides the two caller-facing SNAS client implementations:
BusClient, for administrators and other long-lived services reachable over
NATS, and SocketClient, for a host authentication module that can only open
a Unix domain socket.

# BusClient

BusClient wraps a *nats.Conn already connected to the message bus and
issues a request/reply call per admin or user action:

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return err
	}
	bc, err := client.NewBusClient(nc)
	if err != nil {
		return err
	}

	resp, err := bc.Verify(ctx, "alice", secure.NewString("hunter2"))
	if err != nil {
		return err // transport or protocol-level failure
	}
	if !resp.Valid {
		// rejected credentials; resp.Message explains why
	}

Every method marshals its request, publishes it to "<prefix>.<action>",
and unmarshals the resulting types.Envelope: IntoRequired decodes a
payload-bearing response, IntoEmpty discards the payload on ack-only
actions like RemoveUser or AddGroups. A transport-level NATS error (no
responder, timeout) and a protocol-level failure (account not found,
validation error) both come back through the same error return —
BusClient does not distinguish them, since neither caller needs to retry
differently.

# SocketClient

SocketClient dials a single persistent connection to the Unix socket
served by pkg/socket, and frames requests using the same REQ/RES protocol.
Unlike BusClient it is not safe to share across unrelated concerns beyond
the two operations it supports (Verify, ChangePassword) — it exists for
the narrow, latency-sensitive path of a PAM-style module authenticating a
login attempt without a NATS round trip:

	sc, err := client.NewSocketClient(client.DefaultSocketPath)
	if err != nil {
		return err
	}
	defer sc.Close()

	resp, err := sc.Verify(types.VerifyRequest{Username: "alice", Password: pw})

On a write or read that fails with a classified connection error (broken
pipe, reset, not connected, or a deadline expiring), SocketClient
reconnects once and retries the call before surfacing an error, mirroring
the single-retry reconnect behavior of the authentication module this
protocol was designed for.
*/
package client
