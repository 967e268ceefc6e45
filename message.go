package notifyexec

import (
	"context"
	"time"
)

// Metadata carries the transport-assigned identity of a message.
type Metadata struct {
	MessageID string
	Timestamp time.Time
}

// Message is the raw, wire-shaped body of a notification, as delivered by
// the transport, prior to decoding.
type Message struct {
	PublisherID string
	EventType   string
	Priority    string
	Payload     any
	Metadata    Metadata
}

// IncomingMessage is an envelope from the transport. Ctxt is opaque
// transport-level context, understood only by the configured Serializer.
//
// Each IncomingMessage is acknowledged or requeued exactly once, by the
// dispatch cycle that received it.
type IncomingMessage struct {
	Ctxt    any
	Message Message

	ack     func() error
	requeue func() error
}

// NewIncomingMessage constructs an IncomingMessage bound to the given
// acknowledge/requeue callbacks. Transports use this to hand messages to the
// dispatcher without exposing their internal delivery handle.
func NewIncomingMessage(ctxt any, message Message, ack, requeue func() error) *IncomingMessage {
	if ack == nil {
		ack = func() error { return nil }
	}
	if requeue == nil {
		requeue = func() error { return nil }
	}
	return &IncomingMessage{Ctxt: ctxt, Message: message, ack: ack, requeue: requeue}
}

// Acknowledge marks the message as handled. May be called at most once; the
// dispatcher's post-dispatch phase is the only caller.
func (m *IncomingMessage) Acknowledge() error { return m.ack() }

// Requeue returns the message to the transport for redelivery. May be called
// at most once; the dispatcher's post-dispatch phase is the only caller.
func (m *IncomingMessage) Requeue() error { return m.requeue() }

// DecodedMessage is produced once per IncomingMessage by the Serializer: the
// decoded context, publisher/event identity, payload, and metadata, plus the
// lower-cased priority string (empty if the raw message carried none).
type DecodedMessage struct {
	Ctxt        any
	PublisherID string
	EventType   string
	Payload     any
	Metadata    Metadata
	Priority    Priority
}

// Listener is the transport collaborator consumed by the PooledExecutor.
// Poll and BatchPoll are expected to block (or time out) rather than busy-loop;
// the poller does not sleep between unsuccessful polls.
type Listener interface {
	// Poll waits for, at most, a single message. A nil result (with a nil
	// error) indicates no message was available before ctx was done.
	Poll(ctx context.Context) (*IncomingMessage, error)

	// BatchPoll waits for up to size messages, returning early once
	// partialTimeout elapses with at least one message buffered. A
	// non-positive partialTimeout blocks until size messages are available
	// or ctx is done.
	BatchPoll(ctx context.Context, size int, partialTimeout time.Duration) ([]*IncomingMessage, error)

	// Stop instructs the listener to stop serving new messages. It must not
	// block waiting for in-flight work.
	Stop()
}

// Serializer decodes transport-opaque context and payloads. NoOpSerializer is
// an acceptable default.
type Serializer interface {
	DeserializeContext(raw any) (any, error)
	DeserializeEntity(ctxt, rawPayload any) (any, error)
}
