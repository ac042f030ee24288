package ledger

import "sync"

// portfolioLocks hands out one mutex per portfolio so that concurrent
// reconcile passes for the same portfolio are serialized while passes for
// different portfolios proceed in parallel. Locks are never released from
// the map; the portfolio population is small and long-lived.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *portfolioLocks) get(portfolioID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[portfolioID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[portfolioID] = l
	}
	return l
}
