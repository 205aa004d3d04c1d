package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/pyingest/pkg/types"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSummary renders a run summary for humans
func printSummary(w io.Writer, runID string, cancelled bool, s *types.ProcessingSummary) {
	bold.Fprintf(w, "Ingestion run %s\n", runID)
	if cancelled {
		yellow.Fprintln(w, "  Cancelled before all files were processed")
	}
	if s == nil {
		return
	}

	fmt.Fprintf(w, "  Files found:       %d\n", s.TotalFilesFound)
	green.Fprintf(w, "  Files processed:   %d\n", s.TotalFilesProcessed)
	dim.Fprintf(w, "  Files skipped:     %d\n", s.TotalFilesSkipped)
	if s.TotalFilesFailed > 0 {
		red.Fprintf(w, "  Files failed:      %d\n", s.TotalFilesFailed)
	} else {
		fmt.Fprintf(w, "  Files failed:      0\n")
	}
	fmt.Fprintf(w, "  Elements:          %d\n", s.TotalElementsExtracted)
	fmt.Fprintf(w, "  Chunks:            %d\n", s.TotalChunksCreated)
	fmt.Fprintf(w, "  Embeddings:        %d\n", s.TotalEmbeddingsGenerated)
	fmt.Fprintf(w, "  Avg complexity:    %.2f\n", s.AverageComplexity)
	fmt.Fprintf(w, "  Processing time:   %dms\n", s.TotalProcessingTimeMs)

	if len(s.ElementTypeDistribution) > 0 {
		cyan.Fprintln(w, "\nElement types")
		printCounts(w, s.ElementTypeDistribution)
	}
	if len(s.FileTypeDistribution) > 0 {
		cyan.Fprintln(w, "\nFile types")
		printCounts(w, s.FileTypeDistribution)
	}
	if len(s.MostComplexFiles) > 0 {
		cyan.Fprintln(w, "\nMost complex files")
		for _, f := range s.MostComplexFiles {
			fmt.Fprintf(w, "  %6.2f  %s\n", f.Complexity, f.Path)
		}
	}
	if len(s.ProcessingErrors) > 0 {
		red.Fprintln(w, "\nErrors")
		for _, e := range s.ProcessingErrors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// printCounts lists counts largest first, ties by key
func printCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(w, "  %-14s %d\n", k, counts[k])
	}
}

// printElements renders parsed elements as an aligned table
func printElements(w io.Writer, results []*types.ParsingResult) {
	for _, r := range results {
		if r.Success {
			bold.Fprintf(w, "%s", r.FilePath)
			dim.Fprintf(w, "  (%d lines, %d elements)\n", r.TotalLines, r.ElementCount())
		} else {
			red.Fprintf(w, "%s  %s\n", r.FilePath, strings.Join(r.Errors, "; "))
			continue
		}
		for _, el := range r.Elements {
			fmt.Fprintf(w, "  %-8s %-40s %5d-%-5d cx=%d\n",
				el.ElementType, el.QualifiedName, el.LineStart, el.LineEnd, el.Complexity)
		}
		for _, warn := range r.Warnings {
			yellow.Fprintf(w, "  warning: %s\n", warn)
		}
	}
}
