package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
	"github.com/xmmarcotte/marcotte-dev/internal/indexer"
	"github.com/xmmarcotte/marcotte-dev/internal/searcher"
	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeWorkspaceLocked      = -32002 // Another index or update is running for the workspace
	ErrorCodeRetrievalUnavailable = -32005 // Embedding provider or vector index unreachable
)

const maxReportedErrors = 5

// handleSearch handles the spot-search tool invocation
func (s *Server) handleSearch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	since, err := getTime(args, "since")
	if err != nil {
		return nil, err
	}
	until, err := getTime(args, "until")
	if err != nil {
		return nil, err
	}

	req := searcher.SearchRequest{
		Query: getStringDefault(args, "query", ""),
		Filters: types.Filters{
			Category:   types.Category(getStringDefault(args, "category", "")),
			Workspace:  getStringDefault(args, "workspace", ""),
			Language:   getStringDefault(args, "language", ""),
			Tags:       getStringSlice(args, "tags"),
			SourcePath: getStringDefault(args, "source_path", ""),
			Since:      since,
			Until:      until,
		},
		Limit:      getIntDefault(args, "limit", 0),
		Candidates: getIntDefault(args, "candidates", 0),
		Rerank:     getBoolPtr(args, "rerank"),
		Enhance:    getBoolPtr(args, "enhance"),
		UseCache:   getBoolDefault(args, "use_cache", true),
	}

	resp, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return engine.NewSearchView(resp, getBoolDefault(args, "group_by_category", true)), nil
}

// handleStore handles the spot-store tool invocation
func (s *Server) handleStore(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	category, err := types.ParseCategory(getStringDefault(args, "category", ""))
	if err != nil {
		return nil, err
	}
	rec, err := s.engine.Store(ctx, engine.StoreRequest{
		Text:       getStringDefault(args, "text", ""),
		Category:   category,
		Workspace:  getStringDefault(args, "workspace", ""),
		Language:   getStringDefault(args, "language", ""),
		Tags:       getStringSlice(args, "tags"),
		SourcePath: getStringDefault(args, "source_path", ""),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"stored":    true,
		"id":        rec.ID,
		"category":  rec.Category,
		"workspace": rec.Workspace,
		"tags":      rec.Tags,
	}, nil
}

// handleIndex handles the spot-index tool invocation
func (s *Server) handleIndex(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	workspace, files, err := fileSet(args)
	if err != nil {
		return nil, err
	}
	stats, err := s.engine.Index(ctx, workspace, files)
	return statsResponse(stats, err)
}

// handleUpdate handles the spot-update tool invocation
func (s *Server) handleUpdate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	workspace, files, err := fileSet(args)
	if err != nil {
		return nil, err
	}
	stats, err := s.engine.Update(ctx, workspace, files, getStringSlice(args, "manifest"))
	return statsResponse(stats, err)
}

// statsResponse formats index statistics. A failed run still reports its
// statistics in the error data.
func statsResponse(stats *indexer.Statistics, err error) (interface{}, error) {
	if err != nil {
		mcpErr := toMCPError(err)
		if stats != nil {
			mcpErr.Data = statsMap(stats)
		}
		return nil, mcpErr
	}
	return statsMap(stats), nil
}

func statsMap(stats *indexer.Statistics) map[string]interface{} {
	response := map[string]interface{}{
		"workspace":       stats.Workspace,
		"mode":            stats.Mode,
		"files_processed": stats.FilesProcessed,
		"files_changed":   stats.FilesChanged,
		"files_unchanged": stats.FilesUnchanged,
		"files_removed":   stats.FilesRemoved,
		"files_failed":    stats.FilesFailed,
		"chunks_written":  stats.ChunksWritten,
		"languages_seen":  stats.LanguagesSeen,
		"duration_ms":     stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return response
}

// handleStatus handles the spot-status tool invocation
func (s *Server) handleStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.engine.Status(ctx, getStringDefault(args, "workspace", "")), nil
}

// handleListWorkspaces handles the spot-list-workspaces tool invocation
func (s *Server) handleListWorkspaces(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	list, err := s.engine.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"workspaces": list,
		"count":      len(list),
	}, nil
}

// handleForget handles the spot-forget tool invocation
func (s *Server) handleForget(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	n, err := s.engine.Forget(ctx, getStringSlice(args, "ids"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": n}, nil
}

// fileSet resolves the files of an index or update call, either given
// inline or read from an absolute directory. A directory without an
// explicit workspace names the workspace after itself.
func fileSet(args map[string]interface{}) (string, map[string]string, error) {
	workspace := getStringDefault(args, "workspace", "")

	if raw, ok := args["files"].(map[string]interface{}); ok {
		files := make(map[string]string, len(raw))
		for p, v := range raw {
			content, ok := v.(string)
			if !ok {
				return "", nil, newMCPError(ErrorCodeInvalidParams, "file content must be a string", map[string]interface{}{
					"param": "files",
					"path":  p,
				})
			}
			files[p] = content
		}
		return workspace, files, nil
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		return "", nil, newMCPError(ErrorCodeInvalidParams, "files or path is required", map[string]interface{}{
			"param":  "files",
			"reason": "missing",
		})
	}
	if err := validatePath(path); err != nil {
		return "", nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := indexer.DefaultWalkOptions()
	opts.IncludeTests = getBoolDefault(args, "include_tests", true)
	opts.IncludeVendor = getBoolDefault(args, "include_vendor", false)
	files, err := indexer.CollectFiles(path, opts)
	if err != nil {
		return "", nil, newMCPError(ErrorCodeInternalError, "failed to read files", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if workspace == "" {
		workspace = filepath.Base(path)
	}
	return workspace, files, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func (e *MCPError) payload() map[string]interface{} {
	p := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Data != nil {
		p["data"] = e.Data
	}
	return p
}

// toMCPError maps engine errors onto MCP error codes
func toMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	switch {
	case errors.Is(err, types.ErrWorkspaceLocked):
		return newMCPError(ErrorCodeWorkspaceLocked, err.Error(), nil)
	case errors.Is(err, types.ErrRetrievalUnavailable), errors.Is(err, types.ErrEmbeddingUnavailable):
		return newMCPError(ErrorCodeRetrievalUnavailable, err.Error(), nil)
	case errors.Is(err, types.ErrMalformedInput):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, err.Error(), nil)
	}
}

// arguments extracts the argument object of a tool call
func arguments(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case json.RawMessage:
		var m map[string]interface{}
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
		}
		if m == nil {
			m = map[string]interface{}{}
		}
		return m, nil
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
}

// validateArguments checks args against a tool's input schema
func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return newMCPError(ErrorCodeInvalidParams, "invalid arguments", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return newMCPError(ErrorCodeInvalidParams, "invalid arguments", map[string]interface{}{
			"errors": errs,
		})
	}
	return nil
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getBoolPtr extracts an optional boolean parameter
func getBoolPtr(args map[string]interface{}, key string) *bool {
	if val, ok := args[key].(bool); ok {
		return &val
	}
	return nil
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// getTime extracts an optional RFC 3339 time parameter
func getTime(args map[string]interface{}, key string) (time.Time, error) {
	s := strings.TrimSpace(getStringDefault(args, key, ""))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, newMCPError(ErrorCodeInvalidParams, "invalid time", map[string]interface{}{
			"param":  key,
			"reason": err.Error(),
		})
	}
	return t, nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
