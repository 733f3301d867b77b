package ledger

import "sync"

// userLocks hands out one mutex per user id. Lock granularity is the user:
// two debits on the same wallet serialize, operations on different wallets
// do not contend.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (ul *userLocks) lock(userID string) (unlock func()) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		ul.locks[userID] = m
	}
	ul.mu.Unlock()

	m.Lock()
	return m.Unlock
}
