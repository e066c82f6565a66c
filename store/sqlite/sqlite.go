/*
Package sqlite provides the SQLite-backed implementations of the storage
interfaces.

PURPOSE:
  Implements draft persistence plus the catalog and client-search
  collaborators using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  wizard.DraftStore:     One age-stamped snapshot per session key
  wizard.SaveAction:     Via Archive(), the local stand-in for the policy core
  payment.FactorSource:  Commission factor tables per product
  catalog.Service:       Active-only, name-sorted reference lookups
  catalog.ClientSearch:  Insured-party candidate search

KEY TABLES:
  drafts:             JSON snapshot per session key, stamped on every save
  policies:           Finalized drafts, unique per policy number
  commission_factors: Product factor tables for the commission calculator
  catalog_items:      Reference records (insurers, products, regions, ...)
  clients:            Insured-party candidates for the search steps

SNAPSHOTS:
  Drafts are serialized through wizard.DraftCodec (branch.Codec in
  practice), which records the branch tag next to its payload so the
  tagged union survives the round trip.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/issuance.db", branch.NewCodec())
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - wizard/store.go: DraftStore contract
  - wizard/store/memory.go: In-memory implementation for testing
  - catalog/catalog.go: Collaborator contracts
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/issuance-engine/catalog"
	"github.com/warp/issuance-engine/payment"
	"github.com/warp/issuance-engine/wizard"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	codec wizard.DraftCodec
	mu    sync.RWMutex
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string, codec wizard.DraftCodec) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, codec: codec}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- In-progress wizard snapshots, one per session key
	CREATE TABLE IF NOT EXISTS drafts (
		draft_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	-- Finalized policies. The unique number surfaces duplicate saves.
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		policy_number TEXT NOT NULL UNIQUE,
		snapshot TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	-- Commission factor tables, one row per product
	CREATE TABLE IF NOT EXISTS commission_factors (
		product_id TEXT PRIMARY KEY,
		cash_factor TEXT NOT NULL,
		credit_factor TEXT NOT NULL,
		commission_rate TEXT NOT NULL
	);

	-- Reference data consumed read-only by the wizard
	CREATE TABLE IF NOT EXISTS catalog_items (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_items_kind_active
		ON catalog_items(kind, active);

	-- Insured-party candidates for the search steps
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		id_document TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DRAFT STORE
// =============================================================================

// Save overwrites the snapshot for the key, stamping it with now.
func (s *Store) Save(ctx context.Context, key string, draft *wizard.PolicyDraft) error {
	data, err := s.codec.Encode(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (draft_key, snapshot, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(draft_key) DO UPDATE SET snapshot = excluded.snapshot, saved_at = excluded.saved_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) Load(ctx context.Context, key string) (*wizard.PolicyDraft, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM drafts WHERE draft_key = ?`, key).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	draft, err := s.codec.Decode([]byte(snapshot))
	if err != nil {
		return nil, false, fmt.Errorf("decode draft: %w", err)
	}
	return draft, true, nil
}

// Clear removes the snapshot. Missing keys are a no-op.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_key = ?`, key)
	return err
}

func (s *Store) PeekTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stamp string
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at FROM drafts WHERE draft_key = ?`, key).Scan(&stamp)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt saved_at for %s: %w", key, err)
	}
	return ts, true, nil
}

// =============================================================================
// POLICY ARCHIVE
// =============================================================================

// PolicyArchive persists finalized drafts. It stands in for the external
// policy core and satisfies wizard.SaveAction.
type PolicyArchive struct {
	s *Store
}

// Archive returns the save action backed by this store.
func (s *Store) Archive() *PolicyArchive {
	return &PolicyArchive{s: s}
}

// Save writes the finalized draft. A reused policy number is reported in
// the message form the save taxonomy recognizes.
func (a *PolicyArchive) Save(ctx context.Context, draft *wizard.PolicyDraft) error {
	data, err := a.s.codec.Encode(draft)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	id := draft.PolicyID
	if id == "" {
		id = uuid.New().String()
	}

	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	_, err = a.s.db.ExecContext(ctx, `
		INSERT INTO policies (id, policy_number, snapshot, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_number = excluded.policy_number,
			snapshot = excluded.snapshot,
			saved_at = excluded.saved_at`,
		id, draft.Basic.PolicyNumber, string(data),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("duplicate policy number %s", draft.Basic.PolicyNumber)
		}
		return err
	}
	return nil
}

// =============================================================================
// COMMISSION FACTORS
// =============================================================================

// SeedFactors installs the factor table for a product.
func (s *Store) SeedFactors(ctx context.Context, productID string, t payment.FactorTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO commission_factors
			(product_id, cash_factor, credit_factor, commission_rate)
		VALUES (?, ?, ?, ?)`,
		productID, t.CashFactor.String(), t.CreditFactor.String(), t.CommissionRate.String())
	return err
}

// FactorsFor returns the product's factor table, or (nil, nil) when the
// product has none and the legacy formula applies.
func (s *Store) FactorsFor(ctx context.Context, productID string) (*payment.FactorTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cash, credit, rate string
	err := s.db.QueryRowContext(ctx, `
		SELECT cash_factor, credit_factor, commission_rate
		FROM commission_factors WHERE product_id = ?`, productID).
		Scan(&cash, &credit, &rate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	table := &payment.FactorTable{}
	if table.CashFactor, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("corrupt cash factor for %s: %w", productID, err)
	}
	if table.CreditFactor, err = decimal.NewFromString(credit); err != nil {
		return nil, fmt.Errorf("corrupt credit factor for %s: %w", productID, err)
	}
	if table.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("corrupt commission rate for %s: %w", productID, err)
	}
	return table, nil
}

// =============================================================================
// CATALOG SERVICE
// =============================================================================

// SeedCatalog replaces one catalog's records.
func (s *Store) SeedCatalog(ctx context.Context, kind catalog.Kind, items []catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE kind = ?`, string(kind)); err != nil {
		return err
	}
	for _, it := range items {
		active := 0
		if it.Active {
			active = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_items (kind, id, name, active) VALUES (?, ?, ?, ?)`,
			string(kind), it.ID, it.Name, active); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns the active records of one catalog, sorted by name.
func (s *Store) List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	if !catalog.KnownKind(kind) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownKind, kind)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM catalog_items WHERE kind = ? AND active = 1 ORDER BY name`,
		string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		var it catalog.Item
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, err
		}
		it.Active = true
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// CLIENT SEARCH
// =============================================================================

// SeedClients inserts or replaces insured-party candidates.
func (s *Store) SeedClients(ctx context.Context, clients []catalog.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range clients {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO clients (id, name, id_document) VALUES (?, ?, ?)`,
			c.ID, c.Name, c.IDDocument); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search matches case-insensitively on name and id document.
func (s *Store) Search(ctx context.Context, query string) ([]catalog.Candidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	like := "%" + strings.ToLower(q) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(id_document, '')
		FROM clients
		WHERE lower(name) LIKE ? OR lower(COALESCE(id_document, '')) LIKE ?
		ORDER BY name`, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Candidate
	for rows.Next() {
		var c catalog.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.IDDocument); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Reset drops all rows. Dev/test only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{"drafts", "policies", "commission_factors", "catalog_items", "clients"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}
