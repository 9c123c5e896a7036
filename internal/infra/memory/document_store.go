// Package memory provides process-local implementations of the integrity ports.
// Used by the memory database driver for local runs and by tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// DocumentStore keeps tenant collections in maps. Safe for concurrent use.
type DocumentStore struct {
	mu        sync.RWMutex
	tenants   map[string]map[string][]integrity.Document
	mutations int
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{tenants: make(map[string]map[string][]integrity.Document)}
}

// Seed appends documents to a tenant collection.
func (s *DocumentStore) Seed(tenantID, collection string, docs ...integrity.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	colls, ok := s.tenants[tenantID]
	if !ok {
		colls = make(map[string][]integrity.Document)
		s.tenants[tenantID] = colls
	}
	for _, d := range docs {
		colls[collection] = append(colls[collection], copyDoc(d))
	}
}

// Get returns a copy of one document, or nil.
func (s *DocumentStore) Get(tenantID, collection, id string) integrity.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.tenants[tenantID][collection] {
		if d.ID() == id {
			return copyDoc(d)
		}
	}
	return nil
}

// Mutations counts successful Patch and Delete calls across all tenants.
func (s *DocumentStore) Mutations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutations
}

// ForTenant implements integrity.DataResolver.
func (s *DocumentStore) ForTenant(_ context.Context, tenantID string) (integrity.TenantDataAccess, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("memory: empty tenant id")
	}
	return &tenantHandle{store: s, tenant: tenantID}, nil
}

type tenantHandle struct {
	store  *DocumentStore
	tenant string
}

func (h *tenantHandle) List(ctx context.Context, collection string, filter integrity.Filter) ([]integrity.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	var out []integrity.Document
	for _, d := range h.store.tenants[h.tenant][collection] {
		if filter.Match(d) {
			out = append(out, copyDoc(d))
		}
	}
	return out, nil
}

func (h *tenantHandle) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for _, d := range h.store.tenants[h.tenant][collection] {
		if d.ID() != id {
			continue
		}
		for k, v := range fields {
			d[k] = v
		}
		h.store.mutations++
		return nil
	}
	return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
}

func (h *tenantHandle) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	docs := h.store.tenants[h.tenant][collection]
	for i, d := range docs {
		if d.ID() != id {
			continue
		}
		h.store.tenants[h.tenant][collection] = append(docs[:i], docs[i+1:]...)
		h.store.mutations++
		return nil
	}
	return fmt.Errorf("%s/%s: %w", collection, id, integrity.ErrDocumentNotFound)
}

func copyDoc(d integrity.Document) integrity.Document {
	out := make(integrity.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
