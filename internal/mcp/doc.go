// Package mcp implements the Model Context Protocol (MCP) server for pyingest.
//
// The server exposes five tools to AI coding assistants:
//   - ingest_repository: discover, parse, chunk and store a Python repository
//   - get_ingestion_status: progress or final summary of a run
//   - parse_python: structural elements of Python source or a file
//   - chunk_text: split text into bounded chunks
//   - search_chunks: hybrid, vector or keyword search over stored chunks
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the serve command:
//
//	pyingest serve
//
// # Tool: ingest_repository
//
//	Request:
//	{
//	  "name": "ingest_repository",
//	  "arguments": {
//	    "path": "/path/to/repo",
//	    "exclude_patterns": ["tests/**"],
//	    "batch_size": 10,
//	    "process_async": true
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "6f1c...",
//	  "state": "processing",
//	  "files_discovered": 120,
//	  "files_to_process": 87
//	}
//
// Synchronous calls return the run's ProcessingSummary instead. With
// "repository_source": "git_url" or "github_url" the path is a URL that is
// shallow cloned before discovery; the clone is removed when the run ends.
//
// # Tool: get_ingestion_status
//
// With a run_id the current RunStatus is returned; runs of earlier sessions
// are read from the run history when the server has one. Without a run_id
// every run of this session is listed along with the storage backend's
// chunk, embedding and run counts.
//
// # Error Handling
//
// Tool failures are JSON-RPC errors:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {"param": "path", "reason": "path must be absolute"}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Path not found
//   - -32002: Ingestion already in progress
//   - -32003: Run not found
//   - -32004: Empty query
//
// # Logging
//
// stdout carries the protocol, so the server logs to stderr.
package mcp
