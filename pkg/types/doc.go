// Package types provides the shared data model of the ingestion pipeline.
//
// # Core Types
//
// CodeElement is one structural unit (function, class, method, module)
// extracted from Python source:
//
//	el := types.NewCodeElement(types.ElementSpec{
//	    Type:          types.ElementFunction,
//	    Name:          "load",
//	    QualifiedName: "load",
//	    SourceText:    src,
//	    LineStart:     1,
//	    LineEnd:       4,
//	})
//
// The content hash is computed by the constructor from the qualified name
// and the source text, so identical re-parses produce identical hashes.
//
// ParsingResult groups the elements of one file with diagnostics. A
// syntactically invalid file yields Success=false, no elements and a
// "SyntaxError: ... at line N" entry in Errors.
//
// # Pipeline Types
//
// DiscoveredFile, FileProcessingResult and ProcessingSummary describe one
// ingestion run from the directory walk to the final aggregate. The event
// types (DiscoveryEvent, FileEvent, RunEvent) are what progress sinks
// receive.
//
// # Errors
//
// ErrSyntax, ErrIO, ErrCollaborator and ErrLimitExceeded classify failures;
// ProcessingError wraps a cause with its kind and path:
//
//	if errors.Is(err, types.ErrIO) { ... }
package types
