package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolSearch         = "spot-search"
	ToolStore          = "spot-store"
	ToolIndex          = "spot-index"
	ToolUpdate         = "spot-update"
	ToolStatus         = "spot-status"
	ToolListWorkspaces = "spot-list-workspaces"
	ToolForget         = "spot-forget"
)

func workspaceProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Workspace name; normalized to lower-case with '-' separators",
	}
}

func tagsProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// searchTool returns the tool definition for spot-search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearch,
		Description: "Search stored memories, decisions, patterns and indexed code with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, identifiers or code)",
					"minLength":   1,
				},
				"workspace": workspaceProperty(),
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one category",
					"enum":        []string{"memory", "decision", "pattern", "codebase"},
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one language (e.g. go, python, markdown)",
				},
				"tags": tagsProperty("Only return records carrying all of these tags"),
				"source_path": map[string]interface{}{
					"type":        "string",
					"description": "Only return records from this workspace relative file",
				},
				"since": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Only return records written at or after this RFC 3339 time",
				},
				"until": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Only return records written at or before this RFC 3339 time",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"candidates": map[string]interface{}{
					"type":        "integer",
					"description": "Candidates fetched before reranking (1-500)",
					"default":     50,
					"minimum":     1,
					"maximum":     500,
				},
				"rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "Rerank candidates; defaults to the server setting",
				},
				"enhance": map[string]interface{}{
					"type":        "boolean",
					"description": "Expand the query with abbreviations and synonyms; defaults to the server setting",
				},
				"use_cache": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
				"group_by_category": map[string]interface{}{
					"type":        "boolean",
					"description": "Also report results grouped by category (default true)",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// storeTool returns the tool definition for spot-store
func storeTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolStore,
		Description: "Remember a note, architectural decision or coding pattern",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Content to remember",
					"minLength":   1,
				},
				"category": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"memory", "decision", "pattern"},
					"default": "memory",
				},
				"workspace": workspaceProperty(),
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Language of any code in the text",
				},
				"tags": tagsProperty("Tags attached to the record"),
				"source_path": map[string]interface{}{
					"type":        "string",
					"description": "File the note refers to",
				},
			},
			Required: []string{"text"},
		},
	}
}

func filesProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"description":          "Map of workspace relative path to file content",
		"additionalProperties": map[string]interface{}{"type": "string"},
	}
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute directory to read files from when files is not given",
	}
}

// indexTool returns the tool definition for spot-index
func indexTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndex,
		Description: "Index a complete file set for a workspace; tracked files missing from the set are removed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace": workspaceProperty(),
				"files":     filesProperty(),
				"path":      pathProperty(),
				"include_tests": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
				"include_vendor": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
			},
		},
	}
}

// updateTool returns the tool definition for spot-update
func updateTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolUpdate,
		Description: "Re-index changed files; with a manifest, tracked files absent from it are removed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace": workspaceProperty(),
				"files":     filesProperty(),
				"path":      pathProperty(),
				"manifest": map[string]interface{}{
					"type":        "array",
					"description": "Every path that currently exists in the workspace",
					"items":       map[string]interface{}{"type": "string"},
				},
				"include_tests": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
				"include_vendor": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
			},
		},
	}
}

// statusTool returns the tool definition for spot-status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolStatus,
		Description: "Report tracked files, chunks, last update time and staleness of a workspace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace": workspaceProperty(),
			},
		},
	}
}

// listWorkspacesTool returns the tool definition for spot-list-workspaces
func listWorkspacesTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolListWorkspaces,
		Description: "List every workspace with its index state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// forgetTool returns the tool definition for spot-forget
func forgetTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolForget,
		Description: "Delete records by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ids": map[string]interface{}{
					"type":     "array",
					"minItems": 1,
					"items":    map[string]interface{}{"type": "string", "minLength": 1},
				},
			},
			Required: []string{"ids"},
		},
	}
}
