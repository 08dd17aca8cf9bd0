// Package mcp exposes the retrieval engine as a Model Context Protocol
// server on stdio.
//
// Tools:
//   - spot-search: semantic search over memories, decisions, patterns and code
//   - spot-store: remember a note, decision or pattern
//   - spot-index: full resync of a workspace from inline files or a directory
//   - spot-update: incremental update, removals only with a manifest
//   - spot-status: tracked files, chunks, last update and staleness
//   - spot-list-workspaces: every workspace with its state
//   - spot-forget: delete records by id
//
// Arguments are validated against each tool's input schema before the
// handler runs. Failures are returned as tool results with isError set and
// a JSON body carrying the error code:
//
//	-32602  invalid params
//	-32603  internal error
//	-32002  workspace locked by another index or update
//	-32005  retrieval unavailable (embedding provider or index unreachable)
//
// Example call:
//
//	{
//	  "name": "spot-search",
//	  "arguments": {
//	    "query": "database connection retry",
//	    "workspace": "my-service",
//	    "category": "codebase",
//	    "limit": 5
//	  }
//	}
package mcp
