package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, filters types.Filters, limit int) ([]types.Candidate, error) {
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, filters, limit)
	}
	return searchVectorFallback(ctx, db, queryVector, filters, limit)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, filters types.Filters, limit int) ([]types.Candidate, error) {
	// vec_distance_cosine returns a distance; convert to similarity.
	query := `
		SELECT ` + recordColumns + `,
			1.0 - vec_distance_cosine(r.vector, ?) AS similarity
		FROM records r
		WHERE r.dimension = ?
	`
	args := []interface{}{serializeVector(queryVector), len(queryVector)}

	query, args = applyRecordFilters(query, args, filters)

	query += " ORDER BY similarity DESC, r.created_at ASC, r.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.Candidate, 0, limit)
	for rows.Next() {
		var score float64
		rec, err := scanRecord(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, types.Candidate{Record: rec, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// searchVectorFallback scores every filtered row in Go. It is used when the
// sqlite-vec extension is not available (purego builds).
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, filters types.Filters, limit int) ([]types.Candidate, error) {
	query := `
		SELECT ` + recordColumns + `, r.vector
		FROM records r
		WHERE r.dimension = ?
	`
	args := []interface{}{len(queryVector)}

	query, args = applyRecordFilters(query, args, filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.Candidate, 0, 256)
	for rows.Next() {
		var blob []byte
		rec, err := scanRecord(rows, &blob)
		if err != nil {
			return nil, err
		}
		score := cosineSimilarity(queryVector, deserializeVector(blob))
		candidates = append(candidates, types.Candidate{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortCandidates(candidates)

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// applyRecordFilters adds WHERE clause predicates for every set filter
func applyRecordFilters(query string, args []interface{}, filters types.Filters) (string, []interface{}) {
	if filters.Workspace != "" {
		query += " AND r.workspace = ?"
		args = append(args, filters.Workspace)
	}

	if filters.Category != "" {
		query += " AND r.category = ?"
		args = append(args, string(filters.Category))
	}

	if filters.Language != "" {
		query += " AND r.language = ?"
		args = append(args, filters.Language)
	}

	if filters.SourcePath != "" {
		query += " AND r.source_path = ?"
		args = append(args, filters.SourcePath)
	}

	if !filters.Since.IsZero() {
		query += " AND r.created_at >= ?"
		args = append(args, filters.Since.UnixNano())
	}

	if !filters.Until.IsZero() {
		query += " AND r.created_at <= ?"
		args = append(args, filters.Until.UnixNano())
	}

	for _, tag := range types.NormalizeTags(filters.Tags) {
		query += " AND EXISTS (SELECT 1 FROM record_tags t WHERE t.record_id = r.id AND t.tag = ?)"
		args = append(args, tag)
	}

	return query, args
}

// SortCandidates orders candidates by score descending, then by write time
// and ID so equal scores always come back in the same order.
func SortCandidates(candidates []types.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.Timestamp.Equal(b.Record.Timestamp) {
			return a.Record.Timestamp.Before(b.Record.Timestamp)
		}
		return a.Record.ID < b.Record.ID
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Vectors of different length score 0.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
