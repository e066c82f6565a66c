/*
Package catalog defines the read-only reference-data collaborators: the
catalog lookups and the client-search service.

PURPOSE:
  The wizard treats catalogs as immutable-for-the-session reference data:
  {id, name}-shaped records filtered to active entries and sorted by name.
  A failed fetch degrades gracefully to an empty list plus a logged
  diagnostic; the operator can still proceed with reduced functionality.

IMPLEMENTATIONS:
  - Memory / MemoryClients here (tests, dev seed data)
  - store/sqlite: table-backed catalogs
*/
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// CATALOG KINDS
// =============================================================================

type Kind string

const (
	KindInsurers       Kind = "insurers"
	KindProducts       Kind = "products"
	KindRegions        Kind = "regions"
	KindVehicleTypes   Kind = "vehicle_types"
	KindEquipmentTypes Kind = "equipment_types"
	KindBrands         Kind = "brands"
	KindCountries      Kind = "countries"
)

// ErrUnknownKind is returned for a catalog outside the closed set.
var ErrUnknownKind = errors.New("unknown catalog kind")

func KnownKind(k Kind) bool {
	switch k {
	case KindInsurers, KindProducts, KindRegions, KindVehicleTypes,
		KindEquipmentTypes, KindBrands, KindCountries:
		return true
	}
	return false
}

// Item is one catalog record.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"-"`
}

// Service lists active catalog records sorted by name.
type Service interface {
	List(ctx context.Context, kind Kind) ([]Item, error)
}

// =============================================================================
// CLIENT SEARCH
// =============================================================================

// Candidate is a client-search hit.
type Candidate struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IDDocument string `json:"id_document"`
}

// ClientSearch finds insured-party candidates for the search and
// coverage-assignment steps.
type ClientSearch interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// =============================================================================
// MEMORY IMPLEMENTATIONS
// =============================================================================

// Memory is a seedable in-memory catalog service.
type Memory struct {
	mu    sync.RWMutex
	items map[Kind][]Item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[Kind][]Item)}
}

// Seed replaces the records of one catalog.
func (m *Memory) Seed(kind Kind, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[kind] = append([]Item(nil), items...)
}

func (m *Memory) List(_ context.Context, kind Kind) ([]Item, error) {
	if !KnownKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, it := range m.items[kind] {
		if it.Active {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryClients is a seedable in-memory client search.
type MemoryClients struct {
	mu      sync.RWMutex
	clients []Candidate
}

func NewMemoryClients(clients ...Candidate) *MemoryClients {
	return &MemoryClients{clients: clients}
}

// Search matches case-insensitively on name and id document.
func (m *MemoryClients) Search(_ context.Context, query string) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []Candidate
	for _, c := range m.clients {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.IDDocument), q) {
			out = append(out, c)
		}
	}
	return out, nil
}
