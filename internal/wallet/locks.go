package wallet

import "sync"

// withdrawalLocks linearizes admin decisions per withdrawal id: two
// approvals of the same request can never interleave, so the pending check
// and the completion write form one critical section even around the
// external payout call.
type withdrawalLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWithdrawalLocks() *withdrawalLocks {
	return &withdrawalLocks{locks: make(map[string]*sync.Mutex)}
}

func (wl *withdrawalLocks) lock(withdrawalID string) (unlock func()) {
	wl.mu.Lock()
	m, ok := wl.locks[withdrawalID]
	if !ok {
		m = &sync.Mutex{}
		wl.locks[withdrawalID] = m
	}
	wl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
