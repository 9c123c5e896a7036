package integrity

import (
	"fmt"
	"sync"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// ScanCoordinator lets at most one scan or autofix run per tenant. A second caller
// is rejected immediately instead of queueing.
type ScanCoordinator struct {
	mu     sync.Mutex
	active map[string]string
}

func NewScanCoordinator() *ScanCoordinator {
	return &ScanCoordinator{active: make(map[string]string)}
}

// Do runs fn while holding the tenant's slot. The slot is released even if fn panics.
func (c *ScanCoordinator) Do(tenantID, op string, fn func() error) error {
	if err := c.acquire(tenantID, op); err != nil {
		return err
	}
	defer c.release(tenantID)
	return fn()
}

func (c *ScanCoordinator) acquire(tenantID, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running, busy := c.active[tenantID]; busy {
		return domain.NewError(domain.KindConcurrency, op,
			fmt.Errorf("tenant %s already has a %s in progress", tenantID, running))
	}
	c.active[tenantID] = op
	return nil
}

func (c *ScanCoordinator) release(tenantID string) {
	c.mu.Lock()
	delete(c.active, tenantID)
	c.mu.Unlock()
}

// Busy reports whether the tenant currently holds a slot.
func (c *ScanCoordinator) Busy(tenantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[tenantID]
	return ok
}
