package notifyexec

import (
	"context"
	"testing"
	"time"
)

func TestTombstone_StartsSet(t *testing.T) {
	ts := newTombstone()
	if !ts.isSet() {
		t.Fatal(`a fresh tombstone should start set (quiescent)`)
	}
}

func TestTombstone_ClearThenSet(t *testing.T) {
	ts := newTombstone()
	ts.clear()
	if ts.isSet() {
		t.Fatal(`expected tombstone to be cleared`)
	}

	ts.set()
	if !ts.isSet() {
		t.Fatal(`expected tombstone to be set`)
	}
}

func TestTombstone_SetIsIdempotent(t *testing.T) {
	ts := newTombstone()
	ts.clear()
	ts.set()
	ts.set() // must not panic (close of closed channel)
	if !ts.isSet() {
		t.Fatal(`expected tombstone to remain set`)
	}
}

func TestTombstone_ClearIsIdempotent(t *testing.T) {
	ts := newTombstone()
	ts.clear()
	ts.clear() // already cleared: must not panic or make a new channel needlessly
	if ts.isSet() {
		t.Fatal(`expected tombstone to remain cleared`)
	}
}

func TestTombstone_Wait(t *testing.T) {
	ts := newTombstone()
	ts.clear()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ts.wait(ctx) {
		t.Fatal(`expected wait to time out on a cleared tombstone`)
	}

	ts.set()
	if !ts.wait(context.Background()) {
		t.Fatal(`expected wait to return true once set`)
	}
}
