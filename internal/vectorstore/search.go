package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// queryColumns maps projection field names to document columns.
var queryColumns = map[string]string{
	"id":            "id",
	"content":       "content",
	"relativePath":  "relative_path",
	"relative_path": "relative_path",
	"startLine":     "start_line",
	"endLine":       "end_line",
	"fileExtension": "file_extension",
	"metadata":      "metadata",
}

// Query returns a projection of rows matching the filter. Unknown
// fields are skipped with a warning; an empty field list selects the
// full projection.
func (s *SQLiteStore) Query(ctx context.Context, name, filter string, fields []string, limit int) ([]map[string]any, error) {
	db, err := s.openCollection(name)
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		fields = []string{"id", "content", "relativePath", "startLine", "endLine", "fileExtension", "metadata"}
	}
	cols := make([]string, 0, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := queryColumns[f]
		if !ok {
			s.log.WithField("field", f).Warn("unknown query field, skipping")
			continue
		}
		cols = append(cols, col)
		names = append(names, f)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no valid fields requested")
	}

	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM documents`
	where, args := parseFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, field := range names {
			row[field] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// storedDoc is one fully loaded document row.
type storedDoc struct {
	chunk  types.Chunk
	dense  []float32
	sparse *types.SparseVector
}

// loadDocs reads document rows (optionally filtered) with vectors.
func (s *SQLiteStore) loadDocs(ctx context.Context, db *sql.DB, filter string) ([]storedDoc, error) {
	query := `
		SELECT id, content, relative_path, start_line, end_line,
		       file_extension, metadata, dense_vector, sparse_indices, sparse_values
		FROM documents`
	where, args := parseFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []storedDoc
	for rows.Next() {
		var doc storedDoc
		var metaJSON sql.NullString
		var vecBlob []byte
		var sparseIdx, sparseVal sql.NullString

		if err := rows.Scan(
			&doc.chunk.ID, &doc.chunk.Content, &doc.chunk.RelativePath,
			&doc.chunk.StartLine, &doc.chunk.EndLine, &doc.chunk.FileExtension,
			&metaJSON, &vecBlob, &sparseIdx, &sparseVal,
		); err != nil {
			return nil, err
		}

		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			if err := json.Unmarshal([]byte(metaJSON.String), &doc.chunk.Metadata); err != nil {
				s.log.WithError(err).WithField("chunk", doc.chunk.ID).Warn("invalid chunk metadata")
			}
		}
		doc.dense = deserializeVector(vecBlob)

		if sparseIdx.Valid && sparseVal.Valid {
			var vec types.SparseVector
			if err := json.Unmarshal([]byte(sparseIdx.String), &vec.Indices); err == nil {
				if err := json.Unmarshal([]byte(sparseVal.String), &vec.Values); err == nil {
					doc.sparse = &vec
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Search performs dense cosine search: descending score with stable
// id tiebreak, threshold applied after scoring.
func (s *SQLiteStore) Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]ScoredChunk, error) {
	db, err := s.openCollection(name)
	if err != nil {
		return nil, err
	}
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(query) != info.Dimension {
		return nil, &types.DimensionMismatchError{Want: info.Dimension, Got: len(query)}
	}

	docs, err := s.loadDocs(ctx, db, opts.Filter)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.Chunk, len(docs))
	ranked := make([]rankedID, 0, len(docs))
	for _, doc := range docs {
		score := cosineSimilarity(query, doc.dense)
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		byID[doc.chunk.ID] = doc.chunk
		ranked = append(ranked, rankedID{id: doc.chunk.ID, score: score})
	}
	sortRanked(ranked)

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]ScoredChunk, len(ranked))
	for i, r := range ranked {
		results[i] = ScoredChunk{Chunk: byID[r.id], Score: r.score}
	}
	return results, nil
}

// HybridSearch fuses a dense ranking and a BM25 sparse ranking with
// Reciprocal Rank Fusion. When the sparse query produces no terms
// (unknown vocabulary, untrained model) it silently falls back to
// dense-only under the same limit.
func (s *SQLiteStore) HybridSearch(ctx context.Context, name string, dense []float32, queryText string, opts HybridOptions) ([]ScoredChunk, error) {
	db, err := s.openCollection(name)
	if err != nil {
		return nil, err
	}
	info, err := s.CollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	if !info.IsHybrid {
		return nil, fmt.Errorf("collection %s is not hybrid", name)
	}
	if len(dense) != info.Dimension {
		return nil, &types.DimensionMismatchError{Want: info.Dimension, Got: len(dense)}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultTopK
	}
	// Expanded candidate pool feeding the fusion.
	candidates := limit * 3
	if candidates < 20 {
		candidates = 20
	}

	docs, err := s.loadDocs(ctx, db, opts.Filter)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.Chunk, len(docs))
	denseRanked := make([]rankedID, 0, len(docs))
	for _, doc := range docs {
		byID[doc.chunk.ID] = doc.chunk
		denseRanked = append(denseRanked, rankedID{id: doc.chunk.ID, score: cosineSimilarity(dense, doc.dense)})
	}
	sortRanked(denseRanked)
	if len(denseRanked) > candidates {
		denseRanked = denseRanked[:candidates]
	}

	sparseQuery := s.sparseQueryVector(name, queryText)
	if sparseQuery == nil || sparseQuery.IsEmpty() || sparseQuery.Validate() != nil {
		if len(denseRanked) > limit {
			denseRanked = denseRanked[:limit]
		}
		results := make([]ScoredChunk, len(denseRanked))
		for i, r := range denseRanked {
			results[i] = ScoredChunk{Chunk: byID[r.id], Score: r.score}
		}
		return results, nil
	}

	sparseRanked := make([]rankedID, 0, len(docs))
	for _, doc := range docs {
		if doc.sparse == nil {
			continue
		}
		if score := sparseDot(*doc.sparse, *sparseQuery); score > 0 {
			sparseRanked = append(sparseRanked, rankedID{id: doc.chunk.ID, score: score})
		}
	}
	sortRanked(sparseRanked)
	if len(sparseRanked) > candidates {
		sparseRanked = sparseRanked[:candidates]
	}

	fused := rrfFuse(denseRanked, sparseRanked, DefaultRRFK, limit)
	results := make([]ScoredChunk, len(fused))
	for i, r := range fused {
		results[i] = ScoredChunk{Chunk: byID[r.id], Score: r.score}
	}
	return results, nil
}

// sparseQueryVector generates the BM25 vector for a query, or nil
// when the model is missing, untrained, or the text has no known
// terms.
func (s *SQLiteStore) sparseQueryVector(name, queryText string) *types.SparseVector {
	model, err := s.loadModel(name)
	if err != nil {
		s.log.WithError(err).WithField("collection", name).Warn("bm25 model unavailable, dense-only search")
		return nil
	}
	if !model.Trained() {
		return nil
	}
	vec, err := model.Generate(queryText)
	if err != nil {
		s.log.WithError(err).Warn("sparse query generation failed, dense-only search")
		return nil
	}
	return &vec
}
