package orchestrator

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dshills/pyingest/pkg/types"
)

const (
	// TopFiles is the length of the largest and most complex rankings
	TopFiles = 10

	// MaxSummaryErrors caps ProcessingSummary.ProcessingErrors
	MaxSummaryErrors = 20

	noExtension = "no_extension"
)

// BuildSummary aggregates the results of one run. discovered is the full
// discovery output, including skipped files.
func BuildSummary(discovered []types.DiscoveredFile, results []types.FileProcessingResult, elapsed time.Duration) *types.ProcessingSummary {
	s := &types.ProcessingSummary{
		TotalFilesFound:         len(discovered),
		TotalProcessingTimeMs:   elapsed.Milliseconds(),
		FileTypeDistribution:    make(map[string]int),
		ElementTypeDistribution: make(map[string]int),
		LargestFiles:            make([]types.FileSize, 0),
		MostComplexFiles:        make([]types.FileComplexity, 0),
		ProcessingErrors:        make([]string, 0),
	}
	for _, f := range discovered {
		if !f.ShouldProcess {
			s.TotalFilesSkipped++
		}
	}

	ordered := make([]types.FileProcessingResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RelativePath < ordered[j].RelativePath
	})

	var complexitySum float64
	var complexityCount int

	for _, r := range ordered {
		ext := path.Ext(r.RelativePath)
		if ext == "" {
			ext = noExtension
		}
		s.FileTypeDistribution[ext]++

		if r.ErrorMessage != "" {
			s.ProcessingErrors = appendCapped(s.ProcessingErrors, fmt.Sprintf("%s: %s", r.RelativePath, r.ErrorMessage))
		}
		// parser diagnostics stay on the file result; only storage failures
		// are errors of the run
		for _, w := range r.Warnings {
			if strings.HasPrefix(w, storeFailurePrefix) {
				s.ProcessingErrors = appendCapped(s.ProcessingErrors, fmt.Sprintf("%s: %s", r.RelativePath, w))
			}
		}

		if !r.Succeeded() {
			if r.Status == types.StatusFailed {
				s.TotalFilesFailed++
			}
			continue
		}

		s.TotalFilesProcessed++
		s.TotalElementsExtracted += r.ElementsExtracted
		s.TotalChunksCreated += r.ChunksCreated
		s.TotalEmbeddingsGenerated += r.EmbeddingsGenerated
		for kind, n := range r.ElementTypes {
			s.ElementTypeDistribution[kind] += n
		}

		s.LargestFiles = append(s.LargestFiles, types.FileSize{Path: r.RelativePath, Size: r.FileSize})
		if r.Complexity > 0 {
			complexitySum += r.Complexity
			complexityCount++
			s.MostComplexFiles = append(s.MostComplexFiles, types.FileComplexity{Path: r.RelativePath, Complexity: r.Complexity})
		}
	}

	if complexityCount > 0 {
		s.AverageComplexity = complexitySum / float64(complexityCount)
	}

	// ordered is sorted by path, so stable sorts break ties by path
	sort.SliceStable(s.LargestFiles, func(i, j int) bool {
		return s.LargestFiles[i].Size > s.LargestFiles[j].Size
	})
	sort.SliceStable(s.MostComplexFiles, func(i, j int) bool {
		return s.MostComplexFiles[i].Complexity > s.MostComplexFiles[j].Complexity
	})
	if len(s.LargestFiles) > TopFiles {
		s.LargestFiles = s.LargestFiles[:TopFiles]
	}
	if len(s.MostComplexFiles) > TopFiles {
		s.MostComplexFiles = s.MostComplexFiles[:TopFiles]
	}

	return s
}

func appendCapped(errs []string, msg string) []string {
	if len(errs) >= MaxSummaryErrors {
		return errs
	}
	return append(errs, msg)
}
