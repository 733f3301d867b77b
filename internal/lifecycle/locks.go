package lifecycle

import "sync"

// requestLocks linearizes transitions per request id: reject and close on
// the same request can never interleave.
type requestLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRequestLocks() *requestLocks {
	return &requestLocks{locks: make(map[string]*sync.Mutex)}
}

func (rl *requestLocks) lock(requestID string) (unlock func()) {
	rl.mu.Lock()
	m, ok := rl.locks[requestID]
	if !ok {
		m = &sync.Mutex{}
		rl.locks[requestID] = m
	}
	rl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
