package notifyexec

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// FilterRule is a pure predicate controlling whether an endpoint sees a
// message. Match must have no side effects.
type FilterRule interface {
	Match(ctxt any, publisherID, eventType string, metadata Metadata, payload any) bool
}

// FilterRuleFunc adapts a function to a FilterRule.
type FilterRuleFunc func(ctxt any, publisherID, eventType string, metadata Metadata, payload any) bool

func (f FilterRuleFunc) Match(ctxt any, publisherID, eventType string, metadata Metadata, payload any) bool {
	return f(ctxt, publisherID, eventType, metadata, payload)
}

// CategoryFunc derives a rate-limit category key from a matched message. Two
// messages sharing a category share the same sliding-window budget.
type CategoryFunc func(ctxt any, publisherID, eventType string, metadata Metadata, payload any) any

// RateLimitFilter decorates an optional base FilterRule with a sliding-window
// rate limit: a message matches only if the base rule (if any) matches, and
// the limiter still has budget for the message's category. Endpoints that
// would otherwise be invoked on every matching message can use this to cap
// how often they actually run, per publisher (or any other derived key),
// without affecting transport ack/requeue - filters only gate handler
// selection.
type RateLimitFilter struct {
	base     FilterRule
	category CategoryFunc
	limiter  *catrate.Limiter
}

// NewRateLimitFilter builds a RateLimitFilter from a set of sliding-window
// rates (see catrate.NewLimiter for the exact semantics: shorter windows must
// have lower-or-equal counts than longer ones). base may be nil, in which
// case every message is a candidate, subject only to the rate limit.
// category may be nil, in which case all messages share a single bucket.
func NewRateLimitFilter(rates map[time.Duration]int, base FilterRule, category CategoryFunc) *RateLimitFilter {
	if category == nil {
		category = func(any, string, string, Metadata, any) any { return nil }
	}
	return &RateLimitFilter{
		base:     base,
		category: category,
		limiter:  catrate.NewLimiter(rates),
	}
}

func (f *RateLimitFilter) Match(ctxt any, publisherID, eventType string, metadata Metadata, payload any) bool {
	if f.base != nil && !f.base.Match(ctxt, publisherID, eventType, metadata, payload) {
		return false
	}
	_, ok := f.limiter.Allow(f.category(ctxt, publisherID, eventType, metadata, payload))
	return ok
}
