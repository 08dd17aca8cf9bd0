// Package storage persists records and workspace bookkeeping.
//
// Two interfaces are defined:
//   - VectorIndex: the unified record index (notes, decisions, patterns and
//     code chunks) with filtered nearest-neighbour queries
//   - StateStore: per-workspace tracked files and sync statistics
//
// SQLiteStorage implements both on one database. ChromemIndex is an
// alternate VectorIndex on top of chromem-go, used when index.backend is
// "chromem"; workspace state still lives in SQLite in that mode.
//
// # Database Schema
//
// Tables:
//   - workspaces: tracked file count, chunk count, last update, last errors
//   - tracked_files: (workspace, path) -> content hash
//   - records: every record with its vector as a little-endian float32 blob
//   - record_tags: one row per (record, tag) for tag predicates
//
// Schema versions are applied in order by ApplyMigrations and compared with
// semver.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.spot/spot.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.ReplaceSource(ctx, "billing", "internal/pay/retry.go", records)
//
//	candidates, err := db.Query(ctx, queryVector, types.Filters{
//	    Workspace: "billing",
//	    Category:  types.CategoryDecision,
//	}, 50)
//
// # Filters
//
// Every filter becomes part of the WHERE clause, so the top-N cutoff is
// taken over matching records only. Tags are ANDed through EXISTS
// subqueries on record_tags. Time ranges compare against the write time in
// unix nanoseconds.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Registers the sqlite-vec extension; similarity is computed in SQL with
//     vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - Filtered rows are scored in Go
//
//     CGO_ENABLED=0 go build
//
// Both paths order equal scores by write time and then record ID.
package storage
