package gateway

import (
	"context"
	"sync"
)

// sessionCanceller tracks the in-flight request per shell session so a
// newer request can cancel the one it supersedes.
type sessionCanceller struct {
	mu       sync.Mutex
	inflight map[string]*inflightRequest
}

type inflightRequest struct {
	cancel context.CancelFunc
}

func newSessionCanceller() *sessionCanceller {
	return &sessionCanceller{inflight: make(map[string]*inflightRequest)}
}

// Replace cancels the session's previous in-flight request and registers
// cancel in its place. The returned release removes the registration
// unless a newer request has already replaced it.
func (sc *sessionCanceller) Replace(sessionID string, cancel context.CancelFunc) (release func()) {
	entry := &inflightRequest{cancel: cancel}

	sc.mu.Lock()
	if prev, ok := sc.inflight[sessionID]; ok {
		prev.cancel()
	}
	sc.inflight[sessionID] = entry
	sc.mu.Unlock()

	return func() {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		if sc.inflight[sessionID] == entry {
			delete(sc.inflight, sessionID)
		}
	}
}

// Len reports how many sessions currently have a request in flight.
func (sc *sessionCanceller) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.inflight)
}
