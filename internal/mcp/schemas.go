package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestRepositoryTool returns the tool definition for ingest_repository
func ingestRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_repository",
		Description: "Discover, parse, chunk and store a Python repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root, or the URL to clone for git_url and github_url sources",
				},
				"repository_source": map[string]interface{}{
					"type":        "string",
					"description": "Where path points: a local directory, any git URL, or a GitHub repository (URL or OWNER/REPO). Remote sources are shallow cloned into a temporary directory removed after the run.",
					"enum":        []string{"local_path", "git_url", "github_url"},
					"default":     "local_path",
				},
				"include_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns selecting files (default: Python, docs and project config)",
					"items":       map[string]interface{}{"type": "string"},
				},
				"exclude_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns skipping files; checked before include patterns",
					"items":       map[string]interface{}{"type": "string"},
				},
				"max_files": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files to process",
					"default":     500,
					"minimum":     1,
				},
				"max_file_size": map[string]interface{}{
					"type":        "integer",
					"description": "Largest file processed, in bytes",
					"default":     2000000,
					"minimum":     1,
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Files processed concurrently per batch (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"process_async": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return after discovery and process in the background; poll with get_ingestion_status",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getIngestionStatusTool returns the tool definition for get_ingestion_status
func getIngestionStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_ingestion_status",
		Description: "Report the progress or final summary of an ingestion run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run id returned by ingest_repository; omit to list runs of this session",
				},
			},
		},
	}
}

// parsePythonTool returns the tool definition for parse_python
func parsePythonTool() mcp.Tool {
	return mcp.Tool{
		Name:        "parse_python",
		Description: "Extract functions, classes, methods and module elements from Python source",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Python source text (mutually exclusive with path)",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a Python file (mutually exclusive with source)",
				},
				"include_source": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include each element's source text",
					"default":     false,
				},
			},
		},
	}
}

// chunkTextTool returns the tool definition for chunk_text
func chunkTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chunk_text",
		Description: "Split text into bounded chunks at paragraph, sentence or word boundaries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to split",
				},
				"chunk_size": map[string]interface{}{
					"type":        "integer",
					"description": "Target chunk length in characters",
					"default":     1000,
					"minimum":     1,
				},
				"clean": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, collapse whitespace and drop control characters first",
					"default":     false,
				},
			},
			Required: []string{"text"},
		},
	}
}

// searchChunksTool returns the tool definition for search_chunks
func searchChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_chunks",
		Description: "Search stored chunks by keywords, embedding similarity or both",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text query; keyword ranking requires every term to occur",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid fuses keyword and vector ranking; falls back to keyword without embeddings",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}
