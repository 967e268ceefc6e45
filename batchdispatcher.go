package notifyexec

import (
	"context"
	"time"
)

// BatchDispatcher routes a batch of IncomingMessage values at a time,
// grouping them by priority and calling each registered BatchEndpoint
// handler once per priority, with the full filtered slice for that
// priority. Unlike Dispatcher, it installs no goroutine-local context,
// since batch handlers receive their decoded context inline, per record.
type BatchDispatcher struct {
	targets      []string
	serializer   Serializer
	allowRequeue bool
	logger       Logger
	batchSize    int
	batchTimeout time.Duration
	index        *priorityIndex
	registered   map[Priority]bool
}

// NewBatchDispatcher builds a BatchDispatcher. batchSize <= 0 is coerced to
// 1; batchTimeout <= 0 means BatchPoll blocks until batchSize messages
// arrive.
func NewBatchDispatcher(targets []string, endpoints []BatchEndpoint, serializer Serializer, allowRequeue bool, batchSize int, batchTimeout time.Duration, opts ...Option) *BatchDispatcher {
	if serializer == nil {
		serializer = NoOpSerializer{}
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	cfg := resolveDispatcherConfig(opts)
	index := buildBatchIndex(endpoints)
	registered := make(map[Priority]bool, len(index.batch))
	for p := range index.batch {
		registered[p] = true
	}
	return &BatchDispatcher{
		targets:      targets,
		serializer:   serializer,
		allowRequeue: allowRequeue,
		logger:       cfg.logger,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		index:        index,
		registered:   registered,
	}
}

func (d *BatchDispatcher) BatchMode() bool             { return true }
func (d *BatchDispatcher) BatchSize() int              { return d.batchSize }
func (d *BatchDispatcher) BatchTimeout() time.Duration { return d.batchTimeout }

func (d *BatchDispatcher) TargetPriorities() map[[2]string]struct{} {
	return targetPriorities(d.targets, d.registered)
}

func (d *BatchDispatcher) Poll(ctx context.Context, listener Listener) (*ExecutionContext, error) {
	incoming, err := listener.BatchPoll(ctx, d.batchSize, d.batchTimeout)
	if err != nil {
		return nil, err
	}
	if len(incoming) == 0 {
		return nil, nil
	}
	return d.dispatch(incoming), nil
}

func (d *BatchDispatcher) dispatch(incoming []*IncomingMessage) *ExecutionContext {
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
		postDispatch(d.logger, incoming, requeues)
	}
	return ec
}

func (d *BatchDispatcher) dispatchAndHandleError(incoming []*IncomingMessage) map[*IncomingMessage]struct{} {
	records := make([]extractedRecord, 0, len(incoming))
	for _, raw := range incoming {
		rec, err := extractRecord(d.serializer, raw)
		if err != nil {
			d.logger.Error("exception during message handling", err, nil)
			return nil
		}
		records = append(records, rec)
	}

	requeues := make(map[*IncomingMessage]struct{})
	for _, group := range groupByPriority(records) {
		if !group.priority.Known() {
			d.logger.Warn("unknown priority", map[string]any{"priority": string(group.priority)})
			continue
		}
		for _, route := range d.index.batch[group.priority] {
			filtered := filterRecords(route.filter, group.group)
			if len(filtered) == 0 {
				continue
			}
			decoded := make([]DecodedMessage, len(filtered))
			for i, rec := range filtered {
				decoded[i] = rec.decoded
			}
			verdict := d.invoke(route.handler, decoded)
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

// invoke calls handler. A handler panic is deliberately left to propagate to
// the single outer recover in ec.run - dispatchAndHandleError's whole cycle
// is aborted and every message in the unit is acknowledged, per the dispatch
// boundary contract.
func (d *BatchDispatcher) invoke(handler BatchHandler, records []DecodedMessage) Verdict {
	v, err := handler(records)
	if err != nil {
		d.logger.Error("exception during message handling", err, nil)
		return Handled
	}
	return normalizeVerdict(v)
}
