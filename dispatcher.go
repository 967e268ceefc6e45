package notifyexec

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/joeycumines/go-notifyexec/internal/localctx"
)

// Dispatch is the interface the PooledExecutor polls against. Dispatcher and
// BatchDispatcher are its two implementations; see §9 of the design notes
// for why this is modeled as a strategy rather than a single type branching
// on a flag.
type Dispatch interface {
	// BatchMode, BatchSize, and BatchTimeout are read by the poller to decide
	// whether, and how, to call Listener.BatchPoll instead of Listener.Poll.
	BatchMode() bool
	BatchSize() int
	BatchTimeout() time.Duration

	// Poll calls the appropriate Listener method, and if a message (or
	// non-empty batch) was received, wraps it in an *ExecutionContext ready
	// for submission to the worker pool. A nil *ExecutionContext with a nil
	// error means nothing was available.
	Poll(ctx context.Context, listener Listener) (*ExecutionContext, error)

	// TargetPriorities returns the declarative (target, priority) pairs this
	// dispatcher's registered endpoints would subscribe to, for transports
	// that want to narrow what they deliver.
	TargetPriorities() map[[2]string]struct{}
}

// ExecutionContext pairs one dispatch call with its post-processing. Run
// executes the routing/filtering/invocation pipeline and records the set of
// raw messages to requeue; Done runs exactly once, acknowledging or
// requeuing every raw message in the unit, regardless of whether Run
// succeeded, was never called (submission failure), or anything else went
// wrong along the way.
type ExecutionContext struct {
	run  func() map[*IncomingMessage]struct{}
	post func(requeues map[*IncomingMessage]struct{})

	mu       sync.Mutex
	requeues map[*IncomingMessage]struct{}

	doneOnce sync.Once
}

// Run executes the dispatch pipeline. It never panics: decode, filter, and
// handler-invocation errors are all caught and logged internally (see
// dispatchAndHandleError and the recover in each dispatcher's run closure).
func (e *ExecutionContext) Run() {
	requeues := e.run()
	e.mu.Lock()
	e.requeues = requeues
	e.mu.Unlock()
}

// Done finalizes the execution context, exactly once.
func (e *ExecutionContext) Done() {
	e.doneOnce.Do(func() {
		e.mu.Lock()
		requeues := e.requeues
		e.mu.Unlock()
		e.post(requeues)
	})
}

// extractedRecord is one decoded, not-yet-filtered message plus its raw
// envelope and resolved priority.
type extractedRecord struct {
	priority Priority
	raw      *IncomingMessage
	decoded  DecodedMessage
}

func extractRecord(serializer Serializer, raw *IncomingMessage) (extractedRecord, error) {
	ctxt, err := serializer.DeserializeContext(raw.Ctxt)
	if err != nil {
		return extractedRecord{}, fmt.Errorf("notifyexec: deserialize context: %w", err)
	}
	payload, err := serializer.DeserializeEntity(ctxt, raw.Message.Payload)
	if err != nil {
		return extractedRecord{}, fmt.Errorf("notifyexec: deserialize payload: %w", err)
	}
	decoded := DecodedMessage{
		Ctxt:        ctxt,
		PublisherID: raw.Message.PublisherID,
		EventType:   raw.Message.EventType,
		Payload:     payload,
		Metadata:    raw.Message.Metadata,
		Priority:    Priority(lowerASCII(raw.Message.Priority)),
	}
	return extractedRecord{priority: decoded.Priority, raw: raw, decoded: decoded}, nil
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// groupByPriority groups records by priority, preserving the order of first
// appearance of each priority.
func groupByPriority(records []extractedRecord) []struct {
	priority Priority
	group    []extractedRecord
} {
	var order []Priority
	groups := make(map[Priority][]extractedRecord)
	for _, rec := range records {
		if _, ok := groups[rec.priority]; !ok {
			order = append(order, rec.priority)
		}
		groups[rec.priority] = append(groups[rec.priority], rec)
	}
	out := make([]struct {
		priority Priority
		group    []extractedRecord
	}, 0, len(order))
	for _, p := range order {
		out = append(out, struct {
			priority Priority
			group    []extractedRecord
		}{priority: p, group: groups[p]})
	}
	return out
}

// recoverToError converts a recovered panic value (with a stack trace) into
// an error, for uniform logging at the dispatch boundary.
func recoverToError(r any) error {
	return fmt.Errorf("notifyexec: panic: %v\n%s", r, debug.Stack())
}

// --- single-message dispatcher ---

// Dispatcher routes one IncomingMessage at a time to registered Endpoint
// handlers, calling each with its positional, decoded arguments.
type Dispatcher struct {
	targets      []string
	serializer   Serializer
	allowRequeue bool
	logger       Logger
	index        *priorityIndex
	registered   map[Priority]bool
}

// NewDispatcher builds a Dispatcher from the given targets and endpoints.
// serializer may be nil, in which case NoOpSerializer is used.
func NewDispatcher(targets []string, endpoints []Endpoint, serializer Serializer, allowRequeue bool, opts ...Option) *Dispatcher {
	if serializer == nil {
		serializer = NoOpSerializer{}
	}
	cfg := resolveDispatcherConfig(opts)
	index := buildSingleIndex(endpoints)
	registered := make(map[Priority]bool, len(index.single))
	for p := range index.single {
		registered[p] = true
	}
	return &Dispatcher{
		targets:      targets,
		serializer:   serializer,
		allowRequeue: allowRequeue,
		logger:       cfg.logger,
		index:        index,
		registered:   registered,
	}
}

func (d *Dispatcher) BatchMode() bool             { return false }
func (d *Dispatcher) BatchSize() int              { return 1 }
func (d *Dispatcher) BatchTimeout() time.Duration { return 0 }

func (d *Dispatcher) TargetPriorities() map[[2]string]struct{} {
	return targetPriorities(d.targets, d.registered)
}

func (d *Dispatcher) Poll(ctx context.Context, listener Listener) (*ExecutionContext, error) {
	incoming, err := listener.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if incoming == nil {
		return nil, nil
	}
	return d.dispatch(incoming), nil
}

// dispatch builds the ExecutionContext for a single incoming message.
func (d *Dispatcher) dispatch(incoming *IncomingMessage) *ExecutionContext {
	ec := &ExecutionContext{}
	ec.run = func() (requeues map[*IncomingMessage]struct{}) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("exception during message handling", recoverToError(r), nil)
				requeues = nil
			}
		}()
		return d.dispatchAndHandleError(incoming)
	}
	ec.post = func(requeues map[*IncomingMessage]struct{}) {
		postDispatch(d.logger, []*IncomingMessage{incoming}, requeues)
	}
	return ec
}

func (d *Dispatcher) dispatchAndHandleError(incoming *IncomingMessage) map[*IncomingMessage]struct{} {
	rec, err := extractRecord(d.serializer, incoming)
	if err != nil {
		d.logger.Error("exception during message handling", err, nil)
		return nil
	}

	requeues := make(map[*IncomingMessage]struct{})
	for _, group := range groupByPriority([]extractedRecord{rec}) {
		if !group.priority.Known() {
			d.logger.Warn("unknown priority", map[string]any{"priority": string(group.priority)})
			continue
		}
		for _, route := range d.index.single[group.priority] {
			filtered := filterRecords(route.filter, group.group)
			if len(filtered) == 0 {
				continue
			}
			// single mode: always exactly one record per priority group.
			rec := filtered[0]
			verdict := d.invoke(route.handler, rec)
			if d.allowRequeue && verdict == Requeue {
				for _, m := range group.group {
					requeues[m.raw] = struct{}{}
				}
				break
			}
		}
	}
	return requeues
}

// invoke calls handler with its local context installed. A handler panic is
// deliberately left to propagate to the single outer recover in ec.run -
// dispatchAndHandleError's whole cycle is aborted and every message in the
// unit is acknowledged, per the dispatch boundary contract.
func (d *Dispatcher) invoke(handler Handler, rec extractedRecord) (verdict Verdict) {
	verdict = Handled
	localctx.Scoped(rec.decoded.Ctxt, func() {
		v, err := handler(rec.decoded.Ctxt, rec.decoded.PublisherID, rec.decoded.EventType, rec.decoded.Payload, rec.decoded.Metadata)
		if err != nil {
			d.logger.Error("exception during message handling", err, nil)
			verdict = Handled
			return
		}
		verdict = normalizeVerdict(v)
	})
	return verdict
}

func filterRecords(filter FilterRule, records []extractedRecord) []extractedRecord {
	if filter == nil {
		return records
	}
	out := records[:0:0]
	for _, rec := range records {
		if filter.Match(rec.decoded.Ctxt, rec.decoded.PublisherID, rec.decoded.EventType, rec.decoded.Metadata, rec.decoded.Payload) {
			out = append(out, rec)
		}
	}
	return out
}

func postDispatch(logger Logger, raws []*IncomingMessage, requeues map[*IncomingMessage]struct{}) {
	for _, m := range raws {
		var err error
		if _, ok := requeues[m]; ok {
			err = m.Requeue()
		} else {
			err = m.Acknowledge()
		}
		if err != nil {
			logger.Error("failed to ack/requeue message", err, nil)
		}
	}
}
