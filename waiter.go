package notifyexec

import "context"

// waitAll blocks until every handle in handles is closed, or until ctx is
// done, whichever comes first. It returns the subset of handles still open
// when it returns. Safe to call with an empty handles slice (returns nil
// immediately without blocking).
//
// Each still-pending handle gets one fan-in goroutine, which exits as soon
// as its handle closes (even if waitAll itself has already returned on
// ctx.Done()). The executor's in-flight set holds one handle per submitted,
// unfinished task (not just the ones holding a worker slot), so this is one
// goroutine per such task: a simple way to select across a dynamic number
// of channels without reflect.Select.
func waitAll(ctx context.Context, handles []<-chan struct{}) (pending []<-chan struct{}) {
	if len(handles) == 0 {
		return nil
	}

	remaining := make(map[<-chan struct{}]struct{}, len(handles))
	for _, h := range handles {
		select {
		case <-h:
		default:
			remaining[h] = struct{}{}
		}
	}
	if len(remaining) == 0 {
		return nil
	}

	var deadline <-chan struct{}
	if ctx != nil {
		deadline = ctx.Done()
	}

	done := make(chan (<-chan struct{}), len(remaining))
	for h := range remaining {
		h := h
		go func() {
			<-h
			done <- h
		}()
	}

loop:
	for len(remaining) > 0 {
		select {
		case h := <-done:
			delete(remaining, h)
		case <-deadline:
			break loop
		}
	}

	if len(remaining) == 0 {
		return nil
	}
	pending = make([]<-chan struct{}, 0, len(remaining))
	for h := range remaining {
		pending = append(pending, h)
	}
	return pending
}
