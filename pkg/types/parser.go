package types

import "time"

// ParsingResult is the outcome of parsing one source unit
type ParsingResult struct {
	Success        bool           `json:"success"`
	FilePath       string         `json:"file_path,omitempty"`
	Elements       []*CodeElement `json:"elements"`
	Errors         []string       `json:"errors,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	TotalLines     int            `json:"total_lines"`
	ProcessingTime time.Duration  `json:"-"`
}

// AddError records a parse error
func (pr *ParsingResult) AddError(msg string) {
	pr.Errors = append(pr.Errors, msg)
}

// AddWarning records a non-fatal diagnostic
func (pr *ParsingResult) AddWarning(msg string) {
	pr.Warnings = append(pr.Warnings, msg)
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParsingResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// ElementCount returns the number of extracted elements
func (pr *ParsingResult) ElementCount() int {
	return len(pr.Elements)
}

// FunctionCount returns the number of free functions
func (pr *ParsingResult) FunctionCount() int {
	n := 0
	for _, e := range pr.Elements {
		if e.ElementType.IsFunction() {
			n++
		}
	}
	return n
}

// MethodCount returns the number of functions defined in class bodies
func (pr *ParsingResult) MethodCount() int {
	n := 0
	for _, e := range pr.Elements {
		if e.ElementType.IsMethod() {
			n++
		}
	}
	return n
}

// ClassCount returns the number of classes
func (pr *ParsingResult) ClassCount() int {
	n := 0
	for _, e := range pr.Elements {
		if e.ElementType == ElementClass {
			n++
		}
	}
	return n
}

// ElementTypeCounts returns a histogram of element types
func (pr *ParsingResult) ElementTypeCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range pr.Elements {
		counts[string(e.ElementType)]++
	}
	return counts
}

// MeanComplexity returns the average complexity over all elements, 0 when empty
func (pr *ParsingResult) MeanComplexity() float64 {
	if len(pr.Elements) == 0 {
		return 0
	}
	total := 0
	for _, e := range pr.Elements {
		total += e.Complexity
	}
	return float64(total) / float64(len(pr.Elements))
}
