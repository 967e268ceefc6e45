package memtransport

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-notifyexec"
)

func TestTransport_PublishPoll(t *testing.T) {
	tr := New(4)
	defer tr.Stop()

	incoming, err := tr.Publish(context.Background(), notifyexec.Message{PublisherID: `svc`, EventType: `thing.happened`})
	if err != nil {
		t.Fatal(err)
	}
	if incoming.Message.Metadata.MessageID == `` {
		t.Fatal(`expected a generated MessageID`)
	}

	got, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != incoming {
		t.Fatal(`expected Poll to return the published message`)
	}
}

func TestTransport_PollContextDone(t *testing.T) {
	tr := New(1)
	defer tr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := tr.Poll(ctx)
	if err != nil || got != nil {
		t.Fatalf(`got %v, %v`, got, err)
	}
}

func TestTransport_AckTracked(t *testing.T) {
	tr := New(4)
	defer tr.Stop()

	incoming, err := tr.Publish(context.Background(), notifyexec.Message{})
	if err != nil {
		t.Fatal(err)
	}

	if err := incoming.Acknowledge(); err != nil {
		t.Fatal(err)
	}
	if acked := tr.Acked(); len(acked) != 1 || acked[0] != incoming.Message.Metadata.MessageID {
		t.Fatalf(`got %v`, acked)
	}
}

func TestTransport_RequeueRedelivers(t *testing.T) {
	tr := New(4)
	defer tr.Stop()

	incoming, err := tr.Publish(context.Background(), notifyexec.Message{PublisherID: `svc`})
	if err != nil {
		t.Fatal(err)
	}

	// take the original delivery first, so the Poll below can only see the
	// redelivered copy.
	if _, err := tr.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := incoming.Requeue(); err != nil {
		t.Fatal(err)
	}
	if requeued := tr.Requeued(); len(requeued) != 1 {
		t.Fatalf(`got %v`, requeued)
	}

	redelivered, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if redelivered.Message.Metadata.MessageID != incoming.Message.Metadata.MessageID {
		t.Fatal(`expected the redelivered message to share the original MessageID`)
	}
}

func TestTransport_BatchPoll_reachesSize(t *testing.T) {
	tr := New(8)
	defer tr.Stop()

	for i := 0; i < 3; i++ {
		if _, err := tr.Publish(context.Background(), notifyexec.Message{}); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := tr.BatchPoll(context.Background(), 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf(`got %d messages`, len(batch))
	}
}

func TestTransport_BatchPoll_partialTimeout(t *testing.T) {
	tr := New(8)
	defer tr.Stop()

	if _, err := tr.Publish(context.Background(), notifyexec.Message{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	batch, err := tr.BatchPoll(context.Background(), 5, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf(`got %d messages, want 1`, len(batch))
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf(`returned too early: %s`, elapsed)
	}
}

func TestTransport_BatchPoll_ctxDone(t *testing.T) {
	tr := New(1)
	defer tr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	batch, err := tr.BatchPoll(ctx, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf(`got %d messages, want 0`, len(batch))
	}
}

func TestTransport_Stop_idempotentAndUnblocksPoll(t *testing.T) {
	tr := New(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := tr.Poll(context.Background()); err != nil {
			t.Error(err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Stop()
	tr.Stop() // must not panic

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal(`Poll did not unblock after Stop`)
	}
}

func TestTransport_Publish_failsAfterStop(t *testing.T) {
	tr := New(1)
	tr.Stop()

	if _, err := tr.Publish(context.Background(), notifyexec.Message{}); err != ErrStopped {
		t.Fatalf(`got %v, want ErrStopped`, err)
	}
}
