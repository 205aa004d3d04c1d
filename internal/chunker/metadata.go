package chunker

import (
	"strings"
	"time"
)

const (
	// ProcessorVersion is stamped on every stored chunk
	ProcessorVersion = "1.0.0"

	// IngestedBy identifies the producer in stored metadata
	IngestedBy = "pyingest"
)

// Metadata builds the storage metadata for one chunk. Keys from base are
// copied first; chunk bookkeeping then overrides them. extra, when non-empty,
// is nested under "processing".
func Metadata(base map[string]any, index, total int, extra map[string]any) map[string]any {
	md := make(map[string]any, len(base)+5)
	for k, v := range base {
		md[k] = v
	}

	md["ingestion_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	md["chunk_info"] = map[string]any{
		"index":      index,
		"total":      total,
		"is_chunked": total > 1,
	}
	md["processor_version"] = ProcessorVersion
	md["ingested_by"] = IngestedBy

	if len(extra) > 0 {
		md["processing"] = extra
	}
	return md
}

// ContentType is a coarse guess at what a text holds
type ContentType string

const (
	ContentCode     ContentType = "code"
	ContentMarkdown ContentType = "markdown"
	ContentJSON     ContentType = "json"
	ContentText     ContentType = "text"
)

var (
	codeIndicators = []string{
		"def ", "function ", "class ", "import ", "from ", "#!/", "<?", "<!--",
		"{", "}", "()", "=>", "console.log", "print(", "system.out",
	}
	markdownIndicators = []string{"# ", "## ", "### ", "- ", "* ", "```", "[", "]("}
)

// ContentStats describes a text before chunking
type ContentStats struct {
	WordCount      int         `json:"word_count"`
	CharCount      int         `json:"char_count"`
	LineCount      int         `json:"line_count"`
	DetectedType   ContentType `json:"detected_type"`
	PotentialTitle string      `json:"potential_title,omitempty"`
}

// Analyze derives size statistics, a content type guess and a title
// candidate from raw text
func Analyze(content string) ContentStats {
	stats := ContentStats{
		WordCount:    len(strings.Fields(content)),
		CharCount:    len([]rune(content)),
		LineCount:    strings.Count(content, "\n") + 1,
		DetectedType: detectType(content),
	}

	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	if len([]rune(first)) < 100 && !strings.HasSuffix(first, ".") && len(strings.Fields(first)) <= 10 {
		stats.PotentialTitle = first
	}
	return stats
}

// Map renders the stats for chunk metadata
func (s ContentStats) Map() map[string]any {
	m := map[string]any{
		"word_count":    s.WordCount,
		"char_count":    s.CharCount,
		"line_count":    s.LineCount,
		"detected_type": string(s.DetectedType),
	}
	if s.PotentialTitle != "" {
		m["potential_title"] = s.PotentialTitle
	}
	return m
}

// detectType checks JSON first since the braces of a JSON document are also
// code indicators
func detectType(content string) ContentType {
	trimmed := strings.TrimSpace(content)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		return ContentJSON
	}
	lower := strings.ToLower(content)
	for _, ind := range codeIndicators {
		if strings.Contains(lower, ind) {
			return ContentCode
		}
	}
	for _, ind := range markdownIndicators {
		if strings.Contains(content, ind) {
			return ContentMarkdown
		}
	}
	return ContentText
}
