package storage

import (
	"encoding/binary"
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultSearchLimit is used when a search passes limit <= 0
const DefaultSearchLimit = 10

var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// queryTerms returns the lowercase word terms of a free-text query
func queryTerms(query string) []string {
	raw := termPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]bool, len(raw))
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// ftsQuery turns free text into an FTS5 MATCH expression. Every term is
// quoted, so FTS5 operators in the input are matched literally, and all
// terms must occur.
func ftsQuery(query string) string {
	terms := queryTerms(query)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " ")
}

// termScore counts occurrences of every term in content. It returns 0
// unless all terms occur.
func termScore(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	words := termPattern.FindAllString(strings.ToLower(content), -1)
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	var score float64
	for _, t := range terms {
		n := counts[t]
		if n == 0 {
			return 0
		}
		score += 1 + math.Log(float64(n))
	}
	return score
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topResults sorts by score, highest first with ref as tie-break, and keeps
// at most limit entries
func topResults(results []SearchResult, limit int) []SearchResult {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ref < results[j].Ref
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
