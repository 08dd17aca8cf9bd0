package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

const (
	chromemCollection = "records"
	tagKeyPrefix      = "tag:"
)

// ChromemIndex is a VectorIndex backed by chromem-go. It keeps every record
// in one collection and maps filters onto chromem's metadata where-clauses.
type ChromemIndex struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int
	mu        sync.RWMutex
}

var _ VectorIndex = (*ChromemIndex)(nil)

// NewChromemIndex opens a chromem-go index for vectors of the given
// dimension. An empty path keeps the index in memory; otherwise it is
// persisted under path.
func NewChromemIndex(path string, dimension int) (*ChromemIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemIndex{db: db, col: col, dimension: dimension}, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, records []types.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(ctx, records)
}

// ReplaceSource deletes then inserts under the index write lock, so
// concurrent queries never observe the gap.
func (c *ChromemIndex) ReplaceSource(ctx context.Context, workspace, sourcePath string, records []types.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.deleteWhere(ctx, sourceWhere(workspace, sourcePath)); err != nil {
		return err
	}
	return c.add(ctx, records)
}

func (c *ChromemIndex) DeleteSource(ctx context.Context, workspace, sourcePath string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteWhere(ctx, sourceWhere(workspace, sourcePath))
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := c.col.GetByID(ctx, id); err == nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}
	if err := c.col.Delete(ctx, nil, nil, present...); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return len(present), nil
}

func (c *ChromemIndex) Query(ctx context.Context, vector []float32, filters types.Filters, topN int) ([]types.Candidate, error) {
	if len(vector) == 0 {
		return nil, types.ErrEmptyVector
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []types.Candidate{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.col.Count()
	if total == 0 {
		return []types.Candidate{}, nil
	}

	// Time ranges have no where-clause form: rank every match of the other
	// predicates and apply the range before truncating.
	n := topN
	if !filters.Since.IsZero() || !filters.Until.IsZero() {
		n = total
	}
	n = min(n, total)

	where := chromemWhere(filters, len(vector))
	results, err := c.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	candidates := make([]types.Candidate, 0, len(results))
	for _, res := range results {
		rec, err := recordFromChromem(res.ID, res.Content, res.Metadata)
		if err != nil {
			return nil, err
		}
		if !filters.Match(&rec) {
			continue
		}
		candidates = append(candidates, types.Candidate{Record: rec, Score: float64(res.Similarity)})
	}

	SortCandidates(candidates)
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

// Count ranks every document against a constant reference vector. chromem has
// no filtered count, so a query over the whole collection stands in for one.
func (c *ChromemIndex) Count(ctx context.Context, filters types.Filters) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.col.Count()
	if total == 0 {
		return 0, nil
	}
	if filters.IsZero() {
		return total, nil
	}

	ref := make([]float32, c.dimension)
	for i := range ref {
		ref[i] = 1
	}
	results, err := c.col.QueryEmbedding(ctx, ref, total, chromemWhere(filters, c.dimension), nil)
	if err != nil {
		return 0, fmt.Errorf("chromem count: %w", err)
	}
	n := 0
	for _, res := range results {
		rec, err := recordFromChromem(res.ID, res.Content, res.Metadata)
		if err != nil {
			return 0, err
		}
		if filters.Match(&rec) {
			n++
		}
	}
	return n, nil
}

func (c *ChromemIndex) Close() error {
	return nil
}

func (c *ChromemIndex) add(ctx context.Context, records []types.Record) error {
	for i := range records {
		r := records[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		if len(r.Vector) != c.dimension {
			return fmt.Errorf("record %s: dimension %d, index expects %d", r.ID, len(r.Vector), c.dimension)
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		// Keep the original write time on overwrite.
		if existing, err := c.col.GetByID(ctx, r.ID); err == nil {
			if ts, perr := strconv.ParseInt(existing.Metadata["created_at"], 10, 64); perr == nil {
				r.Timestamp = time.Unix(0, ts)
			}
			if err := c.col.Delete(ctx, nil, nil, r.ID); err != nil {
				return fmt.Errorf("replace record %s: %w", r.ID, err)
			}
		}
		meta, err := chromemMetadata(&r)
		if err != nil {
			return err
		}
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata:  meta,
		}
		if err := c.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document %s: %w", r.ID, err)
		}
	}
	return nil
}

func (c *ChromemIndex) deleteWhere(ctx context.Context, where map[string]string) (int, error) {
	before := c.col.Count()
	if before == 0 {
		return 0, nil
	}
	if err := c.col.Delete(ctx, where, nil); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return before - c.col.Count(), nil
}

func sourceWhere(workspace, sourcePath string) map[string]string {
	return map[string]string{"workspace": workspace, "source_path": sourcePath}
}

func chromemWhere(f types.Filters, dimension int) map[string]string {
	where := map[string]string{"dimension": strconv.Itoa(dimension)}
	if f.Workspace != "" {
		where["workspace"] = f.Workspace
	}
	if f.Category != "" {
		where["category"] = string(f.Category)
	}
	if f.Language != "" {
		where["language"] = f.Language
	}
	if f.SourcePath != "" {
		where["source_path"] = f.SourcePath
	}
	for _, tag := range types.NormalizeTags(f.Tags) {
		where[tagKeyPrefix+tag] = "1"
	}
	return where
}

func chromemMetadata(r *types.Record) (map[string]string, error) {
	tags := types.NormalizeTags(r.Tags)
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		"category":     string(r.Category),
		"workspace":    r.Workspace,
		"language":     r.Language,
		"tags":         string(tagsJSON),
		"created_at":   strconv.FormatInt(r.Timestamp.UnixNano(), 10),
		"source_path":  r.SourcePath,
		"content_hash": r.ContentHash,
		"start_line":   strconv.Itoa(r.StartLine),
		"end_line":     strconv.Itoa(r.EndLine),
		"symbol":       r.Symbol,
		"dimension":    strconv.Itoa(len(r.Vector)),
	}
	for _, tag := range tags {
		meta[tagKeyPrefix+tag] = "1"
	}
	return meta, nil
}

func recordFromChromem(id, content string, meta map[string]string) (types.Record, error) {
	r := types.Record{
		ID:          id,
		Text:        content,
		Category:    types.Category(meta["category"]),
		Workspace:   meta["workspace"],
		Language:    meta["language"],
		SourcePath:  meta["source_path"],
		ContentHash: meta["content_hash"],
		Symbol:      meta["symbol"],
	}
	if err := json.Unmarshal([]byte(meta["tags"]), &r.Tags); err != nil {
		return r, fmt.Errorf("decode tags for %s: %w", id, err)
	}
	ts, err := strconv.ParseInt(meta["created_at"], 10, 64)
	if err != nil {
		return r, fmt.Errorf("decode timestamp for %s: %w", id, err)
	}
	r.Timestamp = time.Unix(0, ts)
	r.StartLine, _ = strconv.Atoi(meta["start_line"])
	r.EndLine, _ = strconv.Atoi(meta["end_line"])
	return r, nil
}
