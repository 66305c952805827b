package retention

import "sync"

// tenantGuard admits at most one in-flight retention run per tenant.
// Two evaluations over a moving snapshot could select divergent
// max_items excesses; serializing runs per tenant avoids that. A second
// caller is rejected immediately (retry-later), never queued.
type tenantGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newTenantGuard() *tenantGuard {
	return &tenantGuard{inFlight: make(map[string]struct{})}
}

// tryAcquire reports whether the tenant slot was free and claims it.
func (g *tenantGuard) tryAcquire(tenantID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[tenantID]; busy {
		return false
	}
	g.inFlight[tenantID] = struct{}{}
	return true
}

// release frees the tenant slot.
func (g *tenantGuard) release(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, tenantID)
}
