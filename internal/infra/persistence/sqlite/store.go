// Package sqlite provides a snapshotting SQLite-backed document store. State
// is persisted to a single state(bucket,payload) table as JSON blobs after
// every successful write and hydrated on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tokencore/internal/infra/persistence/memory"
	"tokencore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

// Store persists the in-memory state to SQLite as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed document store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "tokencore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
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

// taggedDocument carries a kind discriminator alongside the serialized
// document so load can rebuild the concrete variant.
type taggedDocument struct {
	Kind    domain.DocumentKind `json:"kind"`
	Ref     domain.SourceRef    `json:"ref"`
	Payload json.RawMessage     `json:"payload"`
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
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

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloads, err := s.encodeBuckets()
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for bucket, data := range payloads {
		if _, err := tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err := tx.Commit(); err != nil {
		retErr = err
	}
	return retErr
}

func (s *Store) encodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, 4)

	working, err := json.Marshal(s.Store.ExportState())
	if err != nil {
		return nil, fmt.Errorf("encode working copy: %w", err)
	}
	out[bucketWorkingCopy] = working

	if baseline, ok := s.Store.Baseline(); ok {
		data, err := json.Marshal(baseline)
		if err != nil {
			return nil, fmt.Errorf("encode baseline: %w", err)
		}
		out[bucketBaseline] = data
	}

	baselines, err := json.Marshal(s.Store.SourceBaselines())
	if err != nil {
		return nil, fmt.Errorf("encode source baselines: %w", err)
	}
	out[bucketSourceBaselines] = baselines

	docs := s.Store.SourceDocuments()
	tagged := make([]taggedDocument, 0, len(docs))
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode %s document: %w", doc.Kind(), err)
		}
		tagged = append(tagged, taggedDocument{Kind: doc.Kind(), Ref: refOf(doc), Payload: payload})
	}
	data, err := json.Marshal(tagged)
	if err != nil {
		return nil, fmt.Errorf("encode source documents: %w", err)
	}
	out[bucketSourceDocuments] = data
	return out, nil
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

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist()
}

// ImportState replaces the working copy and snapshots to SQLite.
func (s *Store) ImportState(snap domain.Snapshot) {
	s.Store.ImportState(snap)
	_ = s.persist()
}

// SetBaseline replaces the global baseline and snapshots to SQLite.
func (s *Store) SetBaseline(snap domain.Snapshot) {
	s.Store.SetBaseline(snap)
	_ = s.persist()
}

// SetSourceBaseline replaces a per-source baseline and snapshots to SQLite.
func (s *Store) SetSourceBaseline(b domain.SourceBaseline) {
	s.Store.SetSourceBaseline(b)
	_ = s.persist()
}

// RemoveSourceBaseline drops a per-source baseline and snapshots to SQLite.
func (s *Store) RemoveSourceBaseline(ref domain.SourceRef) {
	s.Store.RemoveSourceBaseline(ref)
	_ = s.persist()
}

// SetSourceDocument stores a validated document and snapshots to SQLite.
func (s *Store) SetSourceDocument(ref domain.SourceRef, doc domain.Document) {
	s.Store.SetSourceDocument(ref, doc)
	_ = s.persist()
}

// RemoveSourceDocument drops a stored document and snapshots to SQLite.
func (s *Store) RemoveSourceDocument(ref domain.SourceRef) {
	s.Store.RemoveSourceDocument(ref)
	_ = s.persist()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
