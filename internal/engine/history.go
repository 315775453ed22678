package engine

import (
	"github.com/palaverhq/palaver/internal/models"
)

// historyPager tracks the pagination cursor for one channel session. The
// cursor is the oldest loaded token; older pages are requested before it.
type historyPager struct {
	pageSize int

	oldest   models.Token
	hasMore  bool
	inFlight bool
}

func newHistoryPager(pageSize int) *historyPager {
	return &historyPager{pageSize: pageSize, hasMore: true}
}

// applyInitial records the result of the activation fetch. hasMore follows
// the short-page rule: a page shorter than requested means the beginning of
// history was reached.
func (p *historyPager) applyInitial(count int, oldest models.Token) {
	p.oldest = oldest
	p.hasMore = count == p.pageSize
}

// beginFetch reserves a pagination fetch. It refuses when there is nothing
// more to load, no cursor is set yet, or a fetch is already in flight, so
// overlapping requests never happen.
func (p *historyPager) beginFetch() (before models.Token, ok bool) {
	if !p.hasMore || p.oldest.IsZero() || p.inFlight {
		return 0, false
	}
	p.inFlight = true
	return p.oldest, true
}

// completeFetch releases the in-flight reservation. On success the cursor
// moves to the new oldest token; on failure state is left unchanged so the
// caller can retry.
func (p *historyPager) completeFetch(count int, newOldest models.Token, fetchErr error) {
	p.inFlight = false
	if fetchErr != nil {
		return
	}
	if count == 0 {
		p.hasMore = false
		return
	}
	p.oldest = newOldest
	p.hasMore = count == p.pageSize
}
