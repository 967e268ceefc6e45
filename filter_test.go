package notifyexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterRuleFunc_Match(t *testing.T) {
	called := false
	f := FilterRuleFunc(func(ctxt any, publisherID, eventType string, metadata Metadata, payload any) bool {
		called = true
		return publisherID == `allowed`
	})

	require.True(t, f.Match(nil, `allowed`, ``, Metadata{}, nil))
	require.True(t, called)
	require.False(t, f.Match(nil, `denied`, ``, Metadata{}, nil))
}

func TestRateLimitFilter_NoBase(t *testing.T) {
	f := NewRateLimitFilter(map[time.Duration]int{time.Minute: 2}, nil, nil)

	require.True(t, f.Match(nil, `a`, `e`, Metadata{}, nil))
	require.True(t, f.Match(nil, `b`, `e`, Metadata{}, nil))
	// no category func: both publishers share the single default bucket.
	require.False(t, f.Match(nil, `c`, `e`, Metadata{}, nil))
}

func TestRateLimitFilter_PerCategory(t *testing.T) {
	category := func(_ any, publisherID, _ string, _ Metadata, _ any) any { return publisherID }
	f := NewRateLimitFilter(map[time.Duration]int{time.Minute: 1}, nil, category)

	require.True(t, f.Match(nil, `a`, ``, Metadata{}, nil))
	require.False(t, f.Match(nil, `a`, ``, Metadata{}, nil), `second event for the same category should be rate limited`)
	require.True(t, f.Match(nil, `b`, ``, Metadata{}, nil), `a distinct category has its own budget`)
}

func TestRateLimitFilter_BaseRuleShortCircuits(t *testing.T) {
	base := FilterRuleFunc(func(_ any, publisherID, _ string, _ Metadata, _ any) bool {
		return publisherID == `allowed`
	})
	f := NewRateLimitFilter(map[time.Duration]int{time.Minute: 100}, base, nil)

	require.False(t, f.Match(nil, `denied`, ``, Metadata{}, nil))
	require.True(t, f.Match(nil, `allowed`, ``, Metadata{}, nil))
}
