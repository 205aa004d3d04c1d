// Package discovery walks a repository and decides which files to ingest.
//
// Patterns are gobwas globs matched against slash-separated paths relative
// to the root, with "*" crossing directory separators. A pattern starting
// with "**/" also matches files directly under the root.
//
// For each regular file the first failing rule sets the skip reason:
//   - matches an exclude pattern: "Excluded by pattern: P"
//   - zero bytes: "Empty file"
//   - larger than MaxFileSize: "File too large: N > M"
//   - matches no include pattern: "Not matched by include patterns: [...]"
//
// The walk is lexical and stops as soon as MaxFileCount files are marked for
// processing; files visited before that keep their decisions.
package discovery
