package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCodebaseTool returns the tool definition for index_codebase.
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a codebase directory to make it searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the codebase root directory",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop the existing index and rebuild from scratch",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code.
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search an indexed codebase with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the indexed codebase",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these file extensions (e.g. ['.go', '.ts'])",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// clearIndexTool returns the tool definition for clear_index.
func clearIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_index",
		Description: "Remove the index for a codebase, including its collection and snapshot",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the codebase whose index should be removed",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getIndexingStatusTool returns the tool definition for
// get_indexing_status.
func getIndexingStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_indexing_status",
		Description: "Query indexing status and statistics for a codebase",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the codebase",
				},
			},
			Required: []string{"path"},
		},
	}
}
