// Package bus implements the NATS pub/sub admin and user servers: each
// subscribes to "<prefix>.*" in a queue group named after the prefix,
// strips the prefix to get an action name, deserializes the JSON body,
// dispatches to pkg/handlers, and publishes the resulting Envelope back to
// the reply subject. See spec §4.4.
package bus

import "github.com/nats-io/nats.go"

// Message is the narrow view of a *nats.Msg the dispatcher needs. Kept as
// an interface, the same role pkg/credstore.Entry plays for JetStream KV
// entries, so dispatch logic can be exercised against a fake without a
// live NATS server.
type Message interface {
	Subject() string
	Data() []byte
	Reply() string
}

// Conn is the narrow view of *nats.Conn the servers need: subscribe in a
// queue group, and publish a reply.
type Conn interface {
	QueueSubscribe(subject, queue string, handler func(Message)) (Subscription, error)
	Publish(subject string, data []byte) error
}

// Subscription lets a Server stop receiving messages.
type Subscription interface {
	Unsubscribe() error
}

// NewConn wraps a live *nats.Conn as a Conn.
func NewConn(nc *nats.Conn) Conn {
	return &natsConn{nc: nc}
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) QueueSubscribe(subject, queue string, handler func(Message)) (Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(natsMessage{msg})
	})
}

func (c *natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

type natsMessage struct {
	msg *nats.Msg
}

func (m natsMessage) Subject() string { return m.msg.Subject }
func (m natsMessage) Data() []byte    { return m.msg.Data }
func (m natsMessage) Reply() string   { return m.msg.Reply }
