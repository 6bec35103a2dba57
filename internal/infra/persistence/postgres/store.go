// Package postgres provides a Postgres-backed document store that mirrors
// the in-memory semantics, snapshotting state into a JSONB bucket table
// after each successful write.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"tokencore/internal/infra/persistence/memory"
	"tokencore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/tokencore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory
// implementation for transactional semantics.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the state table exists, and hydrates the in-memory
// store from any existing snapshot.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketWorkingCopy     = "working_copy"
	bucketBaseline        = "baseline"
	bucketSourceBaselines = "source_baselines"
	bucketSourceDocuments = "source_documents"
)

type taggedDocument struct {
	Kind    domain.DocumentKind `json:"kind"`
	Ref     domain.SourceRef    `json:"ref"`
	Payload json.RawMessage     `json:"payload"`
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		switch bucket {
		case bucketWorkingCopy:
			var snap domain.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return fmt.Errorf("decode working copy: %w", err)
			}
			s.Store.ImportState(snap)
		case bucketBaseline:
			var snap domain.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return fmt.Errorf("decode baseline: %w", err)
			}
			s.Store.SetBaseline(snap)
		case bucketSourceBaselines:
			var baselines []domain.SourceBaseline
			if err := json.Unmarshal(payload, &baselines); err != nil {
				return fmt.Errorf("decode source baselines: %w", err)
			}
			for _, b := range baselines {
				s.Store.SetSourceBaseline(b)
			}
		case bucketSourceDocuments:
			var tagged []taggedDocument
			if err := json.Unmarshal(payload, &tagged); err != nil {
				return fmt.Errorf("decode source documents: %w", err)
			}
			for _, td := range tagged {
				doc, err := memory.DecodeDocument(td.Kind, td.Payload)
				if err != nil {
					return fmt.Errorf("decode %s document: %w", td.Kind, err)
				}
				s.Store.SetSourceDocument(td.Ref, doc)
			}
		}
	}
	return rows.Err()
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloads := map[string][]byte{}
	working, err := json.Marshal(s.Store.ExportState())
	if err != nil {
		return fmt.Errorf("encode working copy: %w", err)
	}
	payloads[bucketWorkingCopy] = working
	if baseline, ok := s.Store.Baseline(); ok {
		data, err := json.Marshal(baseline)
		if err != nil {
			return fmt.Errorf("encode baseline: %w", err)
		}
		payloads[bucketBaseline] = data
	}
	baselines, err := json.Marshal(s.Store.SourceBaselines())
	if err != nil {
		return fmt.Errorf("encode source baselines: %w", err)
	}
	payloads[bucketSourceBaselines] = baselines

	docs := s.Store.SourceDocuments()
	tagged := make([]taggedDocument, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s document: %w", doc.Kind(), err)
		}
		tagged = append(tagged, taggedDocument{Kind: doc.Kind(), Ref: refOf(doc), Payload: payload})
	}
	data, err := json.Marshal(tagged)
	if err != nil {
		return fmt.Errorf("encode source documents: %w", err)
	}
	payloads[bucketSourceDocuments] = data

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for bucket, payload := range payloads {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func refOf(doc domain.Document) domain.SourceRef {
	switch d := doc.(type) {
	case *domain.PlatformExtensionDocument:
		return d.Ref()
	case *domain.ThemeOverrideDocument:
		return d.Ref()
	default:
		return domain.CoreRef()
	}
}

// RunInTransaction applies fn within a transaction, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist(ctx)
}

// ImportState replaces the working copy and snapshots to Postgres.
func (s *Store) ImportState(snap domain.Snapshot) {
	s.Store.ImportState(snap)
	_ = s.persist(context.Background())
}

// SetBaseline replaces the global baseline and snapshots to Postgres.
func (s *Store) SetBaseline(snap domain.Snapshot) {
	s.Store.SetBaseline(snap)
	_ = s.persist(context.Background())
}

// SetSourceBaseline replaces a per-source baseline and snapshots to Postgres.
func (s *Store) SetSourceBaseline(b domain.SourceBaseline) {
	s.Store.SetSourceBaseline(b)
	_ = s.persist(context.Background())
}

// RemoveSourceBaseline drops a per-source baseline and snapshots to Postgres.
func (s *Store) RemoveSourceBaseline(ref domain.SourceRef) {
	s.Store.RemoveSourceBaseline(ref)
	_ = s.persist(context.Background())
}

// SetSourceDocument stores a validated document and snapshots to Postgres.
func (s *Store) SetSourceDocument(ref domain.SourceRef, doc domain.Document) {
	s.Store.SetSourceDocument(ref, doc)
	_ = s.persist(context.Background())
}

// RemoveSourceDocument drops a stored document and snapshots to Postgres.
func (s *Store) RemoveSourceDocument(ref domain.SourceRef) {
	s.Store.RemoveSourceDocument(ref)
	_ = s.persist(context.Background())
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
