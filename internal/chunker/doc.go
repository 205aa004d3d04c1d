// Package chunker splits text into retrieval-sized chunks at natural boundaries.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultConfig(), logger)
//	for i, chunk := range c.Chunk(chunker.Clean(text)) {
//	    fmt.Printf("chunk %d: %d chars\n", i, len(chunk))
//	}
//
// # Chunking Strategy
//
// Text longer than the target size is cut repeatedly. Each cut is searched
// for in a window from 200 characters before to 100 characters after the
// target offset, preferring in order:
//   - a paragraph boundary (blank line)
//   - a sentence terminator followed by a newline
//   - a sentence terminator followed by whitespace
//   - a word boundary
//   - a hard cut at the target offset
//
// Chunks are trimmed. A chunk cap (default 100) stops splitting and appends
// the remainder as the last chunk. Chunks shorter than the minimum size are
// dropped unless only one chunk was produced. Lengths count runes, not bytes.
//
// # Cleaning
//
// Clean collapses whitespace for prose. StripControl keeps line structure
// and is used for code renderings so blank lines remain split points.
package chunker
