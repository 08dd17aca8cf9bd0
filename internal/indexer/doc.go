// Package indexer keeps the vector index in step with a workspace's files.
//
// The caller supplies file contents as a map of relative path to text.
// Detect compares SHA-256 fingerprints against the tracked state of the
// workspace and produces a plan: only added and modified files are
// chunked and embedded, and removed files have their records deleted.
//
//	idx := indexer.New(index, state, emb, chunker.New(chunker.DefaultConfig()), indexer.Config{})
//
//	stats, err := idx.Index(ctx, "demo", map[string]string{
//	    "a.py": "def foo(): pass",
//	    "b.py": "def bar(): pass",
//	})
//
// # Modes
//
// Index is a full resync: any tracked file missing from the input is
// removed. Update is additive unless a manifest of every live path is
// passed, in which case tracked paths outside the manifest are removed. An
// empty input never removes anything.
//
// # Failure Handling
//
// Each file is written with a delete-then-insert of its records followed
// by an update of its tracked fingerprint, so tracked state never claims a
// file whose write failed. Failures are collected per file in
// Statistics.Errors; Run returns an error only when every file it
// attempted failed.
//
// # Concurrency
//
// Files are processed by a bounded errgroup. Only one index or update may
// run per workspace at a time; a second call fails immediately with
// types.ErrWorkspaceLocked. With Config.LockDir set, a file lock extends
// that guarantee across processes.
//
// CollectFiles walks a directory to build the input map for the CLI and
// the file watcher.
package indexer
