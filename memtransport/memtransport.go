// Package memtransport is a minimal in-memory Listener, for tests and
// runnable examples. It is not a production transport: there is no
// persistence, no network, and Publish will block once the internal buffer
// is full.
package memtransport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-notifyexec"
)

// ErrStopped is returned by Publish once the Transport has been Stopped.
var ErrStopped = errors.New("memtransport: stopped")

// Transport is a bounded, in-memory Listener. Publish enqueues a message;
// Poll/BatchPoll dequeue it. Acknowledge/Requeue on the resulting
// IncomingMessage record the outcome, observable via Acked/Requeued, which
// is convenient for tests asserting the ack-or-requeue invariant.
//
// Stop is signaled through a dedicated channel rather than closing the
// message channel itself, so a Publish or requeue racing with Stop never
// panics trying to send on a closed channel.
type Transport struct {
	mu       sync.Mutex
	acked    []string
	requeued []string
	stopOnce sync.Once

	ch   chan *notifyexec.IncomingMessage
	done chan struct{}
}

// New constructs a Transport with the given buffer size (the maximum number
// of messages Publish may enqueue before blocking).
func New(buffer int) *Transport {
	if buffer <= 0 {
		buffer = 1
	}
	return &Transport{
		ch:   make(chan *notifyexec.IncomingMessage, buffer),
		done: make(chan struct{}),
	}
}

// Publish enqueues a message, assigning it a random MessageID and the
// current time as Timestamp if unset. It blocks until the message is
// enqueued, ctx is done, or the Transport is Stopped.
func (t *Transport) Publish(ctx context.Context, msg notifyexec.Message) (*notifyexec.IncomingMessage, error) {
	if msg.Metadata.MessageID == "" {
		msg.Metadata.MessageID = uuid.NewString()
	}
	if msg.Metadata.Timestamp.IsZero() {
		msg.Metadata.Timestamp = time.Now()
	}

	incoming := notifyexec.NewIncomingMessage(msg.Metadata.MessageID, msg, t.ackFunc(msg.Metadata.MessageID), t.requeueFunc(msg.Metadata.MessageID, msg))

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return nil, ErrStopped
	default:
	}
	select {
	case t.ch <- incoming:
		return incoming, nil
	case <-t.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) ackFunc(id string) func() error {
	return func() error {
		t.mu.Lock()
		t.acked = append(t.acked, id)
		t.mu.Unlock()
		return nil
	}
}

// requeueFunc re-publishes the message to the back of the buffer,
// approximating a transport that returns an unacknowledged message to the
// head of its own queue for redelivery.
func (t *Transport) requeueFunc(id string, msg notifyexec.Message) func() error {
	return func() error {
		t.mu.Lock()
		t.requeued = append(t.requeued, id)
		t.mu.Unlock()
		select {
		case t.ch <- notifyexec.NewIncomingMessage(id, msg, t.ackFunc(id), t.requeueFunc(id, msg)):
		case <-t.done:
			// stopped: drop the redelivery rather than send on a channel
			// nothing will ever drain again.
		default:
			// buffer full: drop the redelivery rather than block the
			// caller, which is running inside a dispatch cycle.
		}
		return nil
	}
}

// Acked returns the MessageIDs acknowledged so far, in order.
func (t *Transport) Acked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.acked...)
}

// Requeued returns the MessageIDs requeued so far, in order.
func (t *Transport) Requeued() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.requeued...)
}

// Poll implements notifyexec.Listener: a single blocking receive.
func (t *Transport) Poll(ctx context.Context) (*notifyexec.IncomingMessage, error) {
	select {
	case m := <-t.ch:
		return m, nil
	case <-t.done:
		// drain whatever is already buffered before reporting empty.
		select {
		case m := <-t.ch:
			return m, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, nil
	}
}

// BatchPoll implements notifyexec.Listener. It blocks for the first message,
// then keeps receiving until size is reached, partialTimeout elapses since
// that first message arrived, ctx is done, or the Transport is Stopped,
// whichever comes first. A non-positive partialTimeout blocks until size
// messages are available, ctx is done, or the Transport is Stopped.
//
// This mirrors the min-size/partial-timeout shape of longpoll.Channel (see
// DESIGN.md), simplified to a single target size rather than a separate
// min/max.
func (t *Transport) BatchPoll(ctx context.Context, size int, partialTimeout time.Duration) ([]*notifyexec.IncomingMessage, error) {
	if size <= 0 {
		size = 1
	}

	out := make([]*notifyexec.IncomingMessage, 0, size)
	var partialCh <-chan time.Time
	var stopped bool

	for len(out) < size {
		select {
		case m := <-t.ch:
			out = append(out, m)
			if partialTimeout > 0 && partialCh == nil {
				timer := time.NewTimer(partialTimeout)
				defer timer.Stop()
				partialCh = timer.C
			}
		case <-partialCh:
			return out, nil
		case <-ctx.Done():
			return out, nil
		case <-t.done:
			if stopped {
				return out, nil
			}
			stopped = true
			// drain whatever else is already buffered, non-blocking, then stop.
			for len(out) < size {
				select {
				case m := <-t.ch:
					out = append(out, m)
				default:
					return out, nil
				}
			}
			return out, nil
		}
	}
	return out, nil
}

// Stop signals Poll/BatchPoll to stop waiting for new messages, returning
// promptly with whatever was already buffered. Stop is idempotent and never
// blocks.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})
}
