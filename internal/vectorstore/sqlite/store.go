// Package sqlite is the durable vector store. Chunks and their float32
// embeddings live in one SQLite file; similarity is computed in Go.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/sqlite/migrations"
)

// DBFile is the database file name inside the data directory.
const DBFile = "courserag.db"

// Store is a SQLite-backed vector store and document catalog for one collection.
type Store struct {
	db         *sql.DB
	path       string
	collection string
}

var (
	_ vectorstore.Storage = (*Store)(nil)
	_ domain.Catalog      = (*Store)(nil)
)

// NewStore opens (creating if needed) the database in dataDir.
func NewStore(dataDir, collection string) (*Store, error) {
	if collection == "" {
		return nil, errors.New("collection name is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath, collection: collection}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Vector store ====================

// Count returns the number of chunks in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Upsert stores chunks with their vectors in one transaction. Re-upserting an
// existing chunk ID keeps its original insertion position.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, source, path, page, idx, start_off, end_off, size, mod_time, ingested_at, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			source = excluded.source,
			path = excluded.path,
			page = excluded.page,
			idx = excluded.idx,
			start_off = excluded.start_off,
			end_off = excluded.end_off,
			size = excluded.size,
			mod_time = excluded.mod_time,
			ingested_at = excluded.ingested_at,
			text = excluded.text,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		_, err := stmt.ExecContext(ctx,
			s.collection, ch.ID, ch.Source, ch.Path, ch.Page, ch.Index, ch.Start, ch.End, ch.Size,
			toUnix(ch.ModTime), toUnix(ch.IngestedAt), ch.Text, float32SliceToBytes(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// Search scans the collection in insertion order and returns the topK most
// similar chunks by cosine similarity.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, path, page, idx, start_off, end_off, size, mod_time, ingested_at, text, embedding
		FROM chunks WHERE collection = ? ORDER BY seq
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var (
		chunks []domain.Chunk
		scores []float64
	)
	for rows.Next() {
		var (
			ch            domain.Chunk
			modT, ingestT int64
			blob          []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Source, &ch.Path, &ch.Page, &ch.Index, &ch.Start, &ch.End, &ch.Size, &modT, &ingestT, &ch.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		vec, err := bytesToFloat32Slice(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", ch.ID, err)
		}
		ch.ModTime = fromUnix(modT)
		ch.IngestedAt = fromUnix(ingestT)
		chunks = append(chunks, ch)
		scores = append(scores, vectorstore.Cosine(vec, vector))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	idxs := vectorstore.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		results = append(results, domain.SearchResult{Chunk: chunks[j], Score: scores[j]})
	}
	return results, nil
}

// DeleteSource removes every chunk of one source file.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ? AND source = ?", s.collection, source)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear removes all chunks and catalog entries of the collection.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", s.collection); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", s.collection); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return tx.Commit()
}

// ==================== Document catalog ====================

// PutDocument stores or replaces a catalog entry.
func (s *Store) PutDocument(ctx context.Context, rec domain.DocumentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, filename, path, size, mod_time, pages, chunks, summary, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, filename) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			mod_time = excluded.mod_time,
			pages = excluded.pages,
			chunks = excluded.chunks,
			summary = excluded.summary,
			ingested_at = excluded.ingested_at
	`, s.collection, rec.Filename, rec.Path, rec.Size, toUnix(rec.ModTime), rec.Pages, rec.Chunks, rec.Summary, toUnix(rec.IngestedAt))
	if err != nil {
		return fmt.Errorf("saving document %s: %w", rec.Filename, err)
	}
	return nil
}

// GetDocument returns the catalog entry for filename, or nil when absent.
func (s *Store) GetDocument(ctx context.Context, filename string) (*domain.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT filename, path, size, mod_time, pages, chunks, summary, ingested_at
		FROM documents WHERE collection = ? AND filename = ?
	`, s.collection, filename)
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", filename, err)
	}
	return rec, nil
}

// ListDocuments returns all catalog entries ordered by filename.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, path, size, mod_time, pages, chunks, summary, ingested_at
		FROM documents WHERE collection = ? ORDER BY filename
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteDocument removes a catalog entry. Missing entries are not an error.
func (s *Store) DeleteDocument(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND filename = ?", s.collection, filename)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", filename, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*domain.DocumentRecord, error) {
	var (
		rec           domain.DocumentRecord
		modT, ingestT int64
	)
	if err := sc.Scan(&rec.Filename, &rec.Path, &rec.Size, &modT, &rec.Pages, &rec.Chunks, &rec.Summary, &ingestT); err != nil {
		return nil, err
	}
	rec.ModTime = fromUnix(modT)
	rec.IngestedAt = fromUnix(ingestT)
	return &rec, nil
}

// ==================== Helpers ====================

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// float32SliceToBytes encodes a vector as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice decodes a vector written by float32SliceToBytes.
func bytesToFloat32Slice(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding: %d bytes", len(data))
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats, nil
}
