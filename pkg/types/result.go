package types

// Tier is a caller-supplied storage classification passed through to sinks
type Tier string

const (
	// TierProcedural classifies chunks rendered from code elements
	TierProcedural Tier = "procedural"
	// TierSemantic classifies chunks of plain text files
	TierSemantic Tier = "semantic"
)

// DiscoveredFile is one candidate file found during the directory walk
type DiscoveredFile struct {
	AbsolutePath  string `json:"absolute_path"`
	RelativePath  string `json:"relative_path"` // slash separated, relative to the root
	SizeBytes     int64  `json:"size_bytes"`
	IsCode        bool   `json:"is_code"`
	ShouldProcess bool   `json:"should_process"`
	SkipReason    string `json:"skip_reason,omitempty"`
}

// ProcessingStatus is the lifecycle status of one file
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// FileProcessingResult is one file's outcome
type FileProcessingResult struct {
	FilePath            string           `json:"file_path"`
	RelativePath        string           `json:"relative_path"`
	FileSize            int64            `json:"file_size"`
	Status              ProcessingStatus `json:"status"`
	ElementsExtracted   int              `json:"elements_extracted"`
	ChunksCreated       int              `json:"chunks_created"`
	EmbeddingsGenerated int              `json:"embeddings_generated"`
	ProcessingTimeMs    int64            `json:"processing_time_ms"`
	Complexity          float64          `json:"complexity_score"`
	ErrorMessage        string           `json:"error_message,omitempty"`
	Warnings            []string         `json:"warnings,omitempty"`
	ElementTypes        map[string]int   `json:"element_types,omitempty"`
	StorageRefs         []string         `json:"storage_refs,omitempty"`
}

// Succeeded reports whether the file completed
func (r *FileProcessingResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// FileSize is a path with its byte size, used for the largest-files ranking
type FileSize struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// FileComplexity is a path with its mean complexity
type FileComplexity struct {
	Path       string  `json:"path"`
	Complexity float64 `json:"complexity"`
}

// ProcessingSummary aggregates every FileProcessingResult of one run
type ProcessingSummary struct {
	TotalFilesFound     int `json:"total_files_found"`
	TotalFilesProcessed int `json:"total_files_processed"`
	TotalFilesSkipped   int `json:"total_files_skipped"`
	TotalFilesFailed    int `json:"total_files_failed"`

	TotalElementsExtracted   int `json:"total_elements_extracted"`
	TotalChunksCreated       int `json:"total_chunks_created"`
	TotalEmbeddingsGenerated int `json:"total_embeddings_generated"`

	TotalProcessingTimeMs int64   `json:"total_processing_time_ms"`
	AverageComplexity     float64 `json:"average_complexity"`

	FileTypeDistribution    map[string]int `json:"file_type_distribution"`
	ElementTypeDistribution map[string]int `json:"element_type_distribution"`

	LargestFiles     []FileSize       `json:"largest_files"`
	MostComplexFiles []FileComplexity `json:"most_complex_files"`

	ProcessingErrors []string `json:"processing_errors"`
}

// RunState is the state of one orchestrator run
type RunState string

const (
	RunInitialized RunState = "initialized"
	RunDiscovering RunState = "discovering"
	RunProcessing  RunState = "processing"
	RunCompleted   RunState = "completed"
	RunFailed      RunState = "failed"
)

// Terminal reports whether no further transitions can happen
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// DiscoveryEvent is emitted once when discovery finishes
type DiscoveryEvent struct {
	RunID           string `json:"run_id"`
	Root            string `json:"root"`
	FilesDiscovered int    `json:"files_discovered"`
	FilesToProcess  int    `json:"files_to_process"`
	ElapsedMs       int64  `json:"elapsed_ms"`
}

// FileEvent is emitted after each file completes, with running totals
type FileEvent struct {
	RunID     string               `json:"run_id"`
	Result    FileProcessingResult `json:"result"`
	Processed int                  `json:"processed"`
	Total     int                  `json:"total"`
	Failed    int                  `json:"failed"`
	Chunks    int                  `json:"chunks"`
}

// RunEvent is emitted when a run reaches a terminal state
type RunEvent struct {
	RunID     string             `json:"run_id"`
	Root      string             `json:"root"`
	State     RunState           `json:"state"`
	Cancelled bool               `json:"cancelled"`
	Summary   *ProcessingSummary `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
}
