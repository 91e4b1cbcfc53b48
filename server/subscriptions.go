package server

import (
	"sync"
)

// subscriptionTable tracks which connections want resources/updated pushes
// for which URIs. All methods are safe for concurrent use.
type subscriptionTable struct {
	mu     sync.RWMutex
	byURI  map[string]map[string]struct{} // URI -> set of connection IDs
	byConn map[string]map[string]struct{} // connection ID -> set of URIs
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byURI:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// subscribe records connID's interest in uri. Repeat subscriptions are
// idempotent; the return reports whether the membership is new.
func (t *subscriptionTable) subscribe(connID, uri string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byURI[uri] == nil {
		t.byURI[uri] = make(map[string]struct{})
	}
	if _, ok := t.byURI[uri][connID]; ok {
		return false
	}
	t.byURI[uri][connID] = struct{}{}

	if t.byConn[connID] == nil {
		t.byConn[connID] = make(map[string]struct{})
	}
	t.byConn[connID][uri] = struct{}{}
	return true
}

// unsubscribe drops one membership. Unknown memberships are a no-op.
func (t *subscriptionTable) unsubscribe(connID, uri string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(connID, uri)
}

func (t *subscriptionTable) removeLocked(connID, uri string) bool {
	conns, ok := t.byURI[uri]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(t.byURI, uri)
	}
	if uris, ok := t.byConn[connID]; ok {
		delete(uris, uri)
		if len(uris) == 0 {
			delete(t.byConn, connID)
		}
	}
	return true
}

// dropConn purges every membership held by connID and returns the URIs it
// was subscribed to, so the owning handlers can be told.
func (t *subscriptionTable) dropConn(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	uris := make([]string, 0, len(t.byConn[connID]))
	for uri := range t.byConn[connID] {
		uris = append(uris, uri)
	}
	for _, uri := range uris {
		t.removeLocked(connID, uri)
	}
	return uris
}

// subscribers returns the connection IDs currently subscribed to uri.
func (t *subscriptionTable) subscribers(uri string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.byURI[uri]))
	for id := range t.byURI[uri] {
		ids = append(ids, id)
	}
	return ids
}

// isSubscribed reports whether connID holds a membership for uri.
func (t *subscriptionTable) isSubscribed(connID, uri string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byURI[uri][connID]
	return ok
}

// hasSubscribers reports whether any connection watches uri.
func (t *subscriptionTable) hasSubscribers(uri string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byURI[uri]) > 0
}
