package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/semindex-mcp/internal/bm25"
	"github.com/dshills/semindex-mcp/pkg/types"
)

var validCollectionName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// SQLiteStore is the local VectorStore: one SQLite file per
// collection under dir, plus a `{name}_bm25.json` companion for
// hybrid collections.
type SQLiteStore struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB

	log *logrus.Entry
}

// NewSQLiteStore creates a store rooted at dir, creating it if needed.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &SQLiteStore{
		dir: dir,
		dbs: make(map[string]*sql.DB),
		log: logrus.WithField("component", "vectorstore"),
	}, nil
}

// Close closes every open collection database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, name)
	}
	return firstErr
}

func (s *SQLiteStore) dbPath(name string) string {
	return filepath.Join(s.dir, name+".db")
}

// openCollection returns the cached handle for an existing collection.
func (s *SQLiteStore) openCollection(name string) (*sql.DB, error) {
	if !validCollectionName.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[name]; ok {
		return db, nil
	}

	if _, err := os.Stat(s.dbPath(name)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("collection %s: %w", name, types.ErrNotFound)
		}
		return nil, err
	}

	db, err := openDatabase(s.dbPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}
	s.dbs[name] = db
	return db, nil
}

// CreateCollection creates a dense-only collection.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	return s.createCollection(ctx, name, dimension, false)
}

// CreateHybridCollection creates a dense+sparse collection with an
// untrained BM25 companion model.
func (s *SQLiteStore) CreateHybridCollection(ctx context.Context, name string, dimension int) error {
	return s.createCollection(ctx, name, dimension, true)
}

func (s *SQLiteStore) createCollection(ctx context.Context, name string, dimension int, hybrid bool) error {
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if dimension <= 0 {
		return fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dbPath(name)); err == nil {
		return fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
	}

	db, err := openDatabase(s.dbPath(name))
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		_ = os.Remove(s.dbPath(name))
		return err
	}

	meta := map[string]string{
		metaDimension:     strconv.Itoa(dimension),
		metaIsHybrid:      strconv.FormatBool(hybrid),
		metaCreatedAt:     time.Now().UTC().Format(time.RFC3339),
		metaDocumentCount: "0",
	}
	for key, value := range meta {
		if err := setMeta(ctx, db, key, value); err != nil {
			_ = db.Close()
			_ = os.Remove(s.dbPath(name))
			return fmt.Errorf("failed to write collection metadata: %w", err)
		}
	}
	s.dbs[name] = db

	if hybrid {
		if err := s.saveModel(name, bm25.New(bm25.Options{})); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{"collection": name, "dimension": dimension, "hybrid": hybrid}).
		Info("created collection")
	return nil
}

// DropCollection removes all collection state. Dropping a collection
// that doesn't exist is not an error.
func (s *SQLiteStore) DropCollection(_ context.Context, name string) error {
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[name]; ok {
		_ = db.Close()
		delete(s.dbs, name)
	}
	for _, path := range []string{
		s.dbPath(name),
		s.dbPath(name) + "-wal",
		s.dbPath(name) + "-shm",
		s.bm25Path(name),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to drop collection %s: %w", name, err)
		}
	}
	return nil
}

// HasCollection reports whether a collection exists on disk.
func (s *SQLiteStore) HasCollection(_ context.Context, name string) (bool, error) {
	if !validCollectionName.MatchString(name) {
		return false, nil
	}
	_, err := os.Stat(s.dbPath(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListCollections returns the names of every persisted collection.
func (s *SQLiteStore) ListCollections(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".db"))
	}
	return names, nil
}

// CollectionInfo returns the persisted metadata for a collection.
func (s *SQLiteStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	db, err := s.openCollection(name)
	if err != nil {
		return nil, err
	}

	info := &CollectionInfo{Name: name}
	if v, err := getMeta(ctx, db, metaDimension); err == nil {
		info.Dimension, _ = strconv.Atoi(v)
	}
	if v, err := getMeta(ctx, db, metaIsHybrid); err == nil {
		info.IsHybrid, _ = strconv.ParseBool(v)
	}
	if v, err := getMeta(ctx, db, metaCreatedAt); err == nil {
		info.CreatedAt, _ = time.Parse(time.RFC3339, v)
	}
	if v, err := getMeta(ctx, db, metaDocumentCount); err == nil {
		info.DocumentCount, _ = strconv.Atoi(v)
	}
	return info, nil
}

// CheckCollectionLimit always allows creation for the local backend.
func (s *SQLiteStore) CheckCollectionLimit(_ context.Context) (bool, error) {
	return true, nil
}

// Insert upserts chunks with their dense vectors into a collection.
// Id collisions replace the stored row.
func (s *SQLiteStore) Insert(ctx context.Context, name string, chunks []types.Chunk, dense [][]float32) error {
	return s.insert(ctx, name, chunks, dense, nil)
}

// InsertHybrid upserts chunks with dense vectors and BM25 sparse
// vectors generated from the collection's trained model.
func (s *SQLiteStore) InsertHybrid(ctx context.Context, name string, chunks []types.Chunk, dense [][]float32) error {
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if !info.IsHybrid {
		return fmt.Errorf("collection %s is not hybrid", name)
	}
	model, err := s.loadModel(name)
	if err != nil {
		return err
	}
	if !model.Trained() {
		return types.ErrNotTrained
	}

	sparse := make([]*types.SparseVector, len(chunks))
	for i, chunk := range chunks {
		vec, err := model.Generate(chunk.Content)
		if err != nil {
			return err
		}
		if !vec.IsEmpty() {
			sparse[i] = &vec
		}
	}
	return s.insert(ctx, name, chunks, dense, sparse)
}

func (s *SQLiteStore) insert(ctx context.Context, name string, chunks []types.Chunk, dense [][]float32, sparse []*types.SparseVector) error {
	if len(chunks) != len(dense) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(dense))
	}
	if len(chunks) == 0 {
		return nil
	}

	db, err := s.openCollection(name)
	if err != nil {
		return err
	}
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	for _, vec := range dense {
		if len(vec) != info.Dimension {
			return &types.DimensionMismatchError{Want: info.Dimension, Got: len(vec)}
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO documents (
			id, content, relative_path, start_line, end_line,
			file_extension, metadata, dense_vector, sparse_indices, sparse_values
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			relative_path = excluded.relative_path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			file_extension = excluded.file_extension,
			metadata = excluded.metadata,
			dense_vector = excluded.dense_vector,
			sparse_indices = excluded.sparse_indices,
			sparse_values = excluded.sparse_values
	`
	for i, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("invalid chunk %s: %w", chunk.ID, err)
		}

		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode chunk metadata: %w", err)
		}

		var sparseIdx, sparseVal any
		if sparse != nil && sparse[i] != nil {
			idxJSON, err := json.Marshal(sparse[i].Indices)
			if err != nil {
				return err
			}
			valJSON, err := json.Marshal(sparse[i].Values)
			if err != nil {
				return err
			}
			sparseIdx, sparseVal = string(idxJSON), string(valJSON)
		}

		if _, err := tx.ExecContext(ctx, upsert,
			chunk.ID, chunk.Content, chunk.RelativePath, chunk.StartLine, chunk.EndLine,
			chunk.FileExtension, string(metaJSON), serializeVector(dense[i]), sparseIdx, sparseVal,
		); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return s.refreshDocumentCount(ctx, db)
}

// Delete removes chunks by id. Non-existent ids are skipped silently.
// Hybrid collections retrain their BM25 model from the remaining
// corpus so stored sparse weights stay consistent.
func (s *SQLiteStore) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db, err := s.openCollection(name)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `DELETE FROM documents WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.refreshDocumentCount(ctx, db); err != nil {
		return err
	}

	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if info.IsHybrid {
		corpus, err := s.collectCorpus(ctx, db)
		if err != nil {
			return err
		}
		return s.retrain(ctx, name, db, corpus)
	}
	return nil
}

// TrainBM25 (re)trains the collection's sparse model over the given
// corpus and regenerates sparse vectors for stored documents.
func (s *SQLiteStore) TrainBM25(ctx context.Context, name string, corpus []string) error {
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if !info.IsHybrid {
		return fmt.Errorf("collection %s is not hybrid", name)
	}
	db, err := s.openCollection(name)
	if err != nil {
		return err
	}
	return s.retrain(ctx, name, db, corpus)
}

func (s *SQLiteStore) retrain(ctx context.Context, name string, db *sql.DB, corpus []string) error {
	model := bm25.New(bm25.Options{})
	if len(corpus) > 0 {
		if err := model.Learn(corpus); err != nil {
			return err
		}
	}
	if err := s.saveModel(name, model); err != nil {
		return err
	}
	if !model.Trained() {
		return nil
	}
	return s.regenerateSparse(ctx, db, model)
}

// regenerateSparse recomputes sparse vectors for every stored
// document under the current model.
func (s *SQLiteStore) regenerateSparse(ctx context.Context, db *sql.DB, model *bm25.Model) error {
	rows, err := db.QueryContext(ctx, `SELECT id, content FROM documents`)
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	type docSparse struct {
		id     string
		vector types.SparseVector
	}
	var updates []docSparse
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			_ = rows.Close()
			return err
		}
		vec, err := model.Generate(content)
		if err != nil {
			_ = rows.Close()
			return err
		}
		updates = append(updates, docSparse{id: id, vector: vec})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		var idx, val any
		if !u.vector.IsEmpty() {
			idxJSON, err := json.Marshal(u.vector.Indices)
			if err != nil {
				return err
			}
			valJSON, err := json.Marshal(u.vector.Values)
			if err != nil {
				return err
			}
			idx, val = string(idxJSON), string(valJSON)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET sparse_indices = ?, sparse_values = ? WHERE id = ?`,
			idx, val, u.id); err != nil {
			return fmt.Errorf("failed to update sparse vector for %s: %w", u.id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) collectCorpus(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT content FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var corpus []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		corpus = append(corpus, content)
	}
	return corpus, rows.Err()
}

func (s *SQLiteStore) refreshDocumentCount(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO _metadata (key, value)
		VALUES (?, (SELECT COUNT(*) FROM documents))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaDocumentCount)
	if err != nil {
		return fmt.Errorf("failed to update document count: %w", err)
	}
	return nil
}
