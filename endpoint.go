package notifyexec

// Handler is a single-mode endpoint method: called once per matching,
// filtered message, with its fully decoded fields.
type Handler func(ctxt any, publisherID, eventType string, payload any, metadata Metadata) (Verdict, error)

// BatchHandler is a batch-mode endpoint method: called once per priority,
// with every filtered record sharing that priority in the current batch.
type BatchHandler func(records []DecodedMessage) (Verdict, error)

// Endpoint is a user-supplied object exposing zero or more priority handlers.
// Handlers returns the (possibly empty) set of priorities this endpoint
// wants to receive, keyed by one of the seven fixed priority strings; any
// other key is ignored. Registration is by explicit capability, not
// reflection over method names.
type Endpoint interface {
	Handlers() map[Priority]Handler
}

// BatchEndpoint is the batch-mode counterpart of Endpoint.
type BatchEndpoint interface {
	BatchHandlers() map[Priority]BatchHandler
}

// FilterRuleProvider is an optional capability: an Endpoint (or BatchEndpoint)
// may implement it to screen which messages its handlers see.
type FilterRuleProvider interface {
	FilterRule() FilterRule
}

// priorityIndex maps priority -> ordered (filter, handler) registrations, in
// endpoint-registration order. It is built once, at dispatcher construction.
type priorityIndex struct {
	single map[Priority][]singleRoute
	batch  map[Priority][]batchRoute
}

type singleRoute struct {
	filter  FilterRule
	handler Handler
}

type batchRoute struct {
	filter  FilterRule
	handler BatchHandler
}

func buildSingleIndex(endpoints []Endpoint) *priorityIndex {
	idx := &priorityIndex{single: make(map[Priority][]singleRoute)}
	for _, endpoint := range endpoints {
		if endpoint == nil {
			continue
		}
		var filter FilterRule
		if provider, ok := endpoint.(FilterRuleProvider); ok {
			filter = provider.FilterRule()
		}
		for priority, handler := range endpoint.Handlers() {
			if handler == nil || !priority.Known() {
				continue
			}
			idx.single[priority] = append(idx.single[priority], singleRoute{filter: filter, handler: handler})
		}
	}
	return idx
}

func buildBatchIndex(endpoints []BatchEndpoint) *priorityIndex {
	idx := &priorityIndex{batch: make(map[Priority][]batchRoute)}
	for _, endpoint := range endpoints {
		if endpoint == nil {
			continue
		}
		var filter FilterRule
		if provider, ok := endpoint.(FilterRuleProvider); ok {
			filter = provider.FilterRule()
		}
		for priority, handler := range endpoint.BatchHandlers() {
			if handler == nil || !priority.Known() {
				continue
			}
			idx.batch[priority] = append(idx.batch[priority], batchRoute{filter: filter, handler: handler})
		}
	}
	return idx
}

// targetPriorities returns the declarative (target, priority) subscription
// set a transport would be asked to listen on, given the registered targets
// and the priorities actually routed to by the index.
func targetPriorities(targets []string, registered map[Priority]bool) map[[2]string]struct{} {
	out := make(map[[2]string]struct{}, len(targets)*len(registered))
	for _, target := range targets {
		for priority := range registered {
			out[[2]string{target, string(priority)}] = struct{}{}
		}
	}
	return out
}
