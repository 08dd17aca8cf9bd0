// Package engine assembles the retrieval engine from its parts and exposes
// the operations callers use: Search, Index, Update, Status, Store,
// ListWorkspaces and Forget.
//
// Writes go through the indexer (code) or Store (notes, decisions and
// patterns); every successful write purges the searcher's response cache.
// Workspace names are normalized with NormalizeWorkspace before use.
package engine
