package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/semindex-mcp/internal/indexer"
	"github.com/dshills/semindex-mcp/internal/registry"
	"github.com/dshills/semindex-mcp/internal/searcher"
)

// MCP error codes.
const (
	ErrorCodeInvalidParams      = -32602
	ErrorCodeInternalError      = -32603
	ErrorCodeIndexingInProgress = -32002
)

// handleIndexCodebase handles the index_codebase tool invocation.
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	force, _ := args["force"].(bool)

	// An existing index gets an incremental pass unless forced.
	if !force {
		if entry, ok := s.registry.Get(path); ok && entry.Status == registry.StatusIndexed {
			stats, err := s.indexer.ReindexByChange(ctx, path, nil)
			if err != nil {
				return s.indexError(err)
			}
			return mcp.NewToolResultText(formatJSON(map[string]interface{}{
				"indexed":  true,
				"mode":     "incremental",
				"added":    stats.Added,
				"modified": stats.Modified,
				"removed":  stats.Removed,
			})), nil
		}
	}

	stats, err := s.indexer.Index(ctx, path, force, nil)
	if err != nil {
		return s.indexError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed":        true,
		"mode":           "full",
		"files_indexed":  stats.Files,
		"chunks_created": stats.Chunks,
		"completion":     string(stats.Completion),
	})), nil
}

// handleSearchCode handles the search_code tool invocation.
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param": "query",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var extensions []string
	if raw, ok := args["extensions"].([]interface{}); ok {
		for _, v := range raw {
			if ext, ok := v.(string); ok {
				extensions = append(extensions, ext)
			}
		}
	}

	resp, err := s.searcher.Search(ctx, path, searcher.Request{
		Query:      query,
		Limit:      limit,
		Extensions: extensions,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"content":       r.Content,
			"relative_path": r.RelativePath,
			"start_line":    r.StartLine,
			"end_line":      r.EndLine,
			"language":      r.Language,
			"score":         r.Score,
		})
	}

	out := map[string]interface{}{
		"results": results,
		"total":   len(results),
	}
	if resp.InProgress {
		out["indexing_in_progress"] = true
		out["indexing_progress"] = resp.Progress
		out["hint"] = "Indexing is still running; results may be incomplete."
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// handleClearIndex handles the clear_index tool invocation.
func (s *Server) handleClearIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	if err := s.indexer.ClearIndex(ctx, path); err != nil {
		return s.indexError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
		"path":    path,
	})), nil
}

// handleGetIndexingStatus handles the get_indexing_status tool
// invocation.
func (s *Server) handleGetIndexingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	entry, ok := s.registry.Get(path)
	if !ok {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"status":  "not_found",
			"path":    path,
			"message": "Codebase not indexed. Use index_codebase to index it.",
		})), nil
	}

	out := map[string]interface{}{
		"status":       string(entry.Status),
		"path":         path,
		"last_updated": entry.LastUpdated,
	}
	switch entry.Status {
	case registry.StatusIndexing:
		out["progress"] = entry.Progress
	case registry.StatusIndexed:
		out["files"] = entry.Files
		out["chunks"] = entry.Chunks
		out["completion"] = string(entry.Completion)
	case registry.StatusFailed:
		out["message"] = entry.Message
		if entry.LastProgress != nil {
			out["last_progress"] = *entry.LastProgress
		}
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// indexError maps pipeline failures onto MCP errors.
func (s *Server) indexError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is already running", nil)
	}
	return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
		"error": err.Error(),
		"hint":  "Check embedder connectivity, or retry with force to rebuild the index.",
	})
}

// requirePath extracts and validates the path argument.
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return path, nil
}

// validatePath checks that a path is an accessible absolute directory.
func validatePath(path string) error {
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
	return nil
}

// newMCPError creates a properly formatted MCP error.
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// MCPError represents an MCP protocol error.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON.
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation errors.
var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
