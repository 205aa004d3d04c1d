package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
)

const (
	// DefaultTargetSize is the preferred chunk length in characters
	DefaultTargetSize = 1000

	// DefaultMinChunkSize drops trimmed chunks shorter than this unless alone
	DefaultMinChunkSize = 100

	// DefaultMaxChunks bounds the number of chunks produced per call
	DefaultMaxChunks = 100

	// lookBehind and lookAhead bound the split window around the target offset
	lookBehind = 200
	lookAhead  = 100

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Split boundaries in priority order. The first three split after the match,
// the word boundary splits before it.
var (
	paragraphBoundary    = regexp.MustCompile(`\n\s*\n`)
	sentenceLineBoundary = regexp.MustCompile(`[.!?]\s*\n`)
	sentenceBoundary     = regexp.MustCompile(`[.!?]\s+`)
	wordBoundary         = regexp.MustCompile(`\s+`)
)

// Config sizes the chunker. Zero values fall back to the defaults; a negative
// MinChunkSize keeps chunks of any length.
type Config struct {
	TargetSize   int
	MinChunkSize int
	MaxChunks    int
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{
		TargetSize:   DefaultTargetSize,
		MinChunkSize: DefaultMinChunkSize,
		MaxChunks:    DefaultMaxChunks,
	}
}

func (c Config) withDefaults() Config {
	if c.TargetSize <= 0 {
		c.TargetSize = DefaultTargetSize
	}
	if c.MinChunkSize < 0 {
		c.MinChunkSize = 0
	} else if c.MinChunkSize == 0 {
		c.MinChunkSize = DefaultMinChunkSize
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	return c
}

// Chunker splits text into bounded segments at natural boundaries.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	cfg    Config
	logger *logrus.Logger
}

// New creates a Chunker. A nil logger discards output.
func New(cfg Config, logger *logrus.Logger) *Chunker {
	return &Chunker{
		cfg:    cfg.withDefaults(),
		logger: logging.OrDiscard(logger),
	}
}

// Config returns the effective configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits text using the configured target size
func (c *Chunker) Chunk(text string) []string {
	return c.ChunkWithTarget(text, c.cfg.TargetSize)
}

// ChunkWithTarget splits text into chunks of roughly target characters.
// Text that fits is returned whole; empty text yields no chunks.
func (c *Chunker) ChunkWithTarget(text string, target int) []string {
	if target <= 0 {
		target = c.cfg.TargetSize
	}

	runes := []rune(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(runes) <= target {
		return []string{strings.TrimSpace(text)}
	}

	chunks := make([]string, 0, len(runes)/target+1)
	rest := runes
	for len(rest) > target && len(chunks) < c.cfg.MaxChunks-1 {
		split := findSplit(rest, target)
		if split <= 0 {
			split = target
		}
		if chunk := strings.TrimSpace(string(rest[:split])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = rest[split:]
	}
	if len(rest) > target {
		c.logger.WithFields(logrus.Fields{
			"max_chunks": c.cfg.MaxChunks,
			"remainder":  len(rest),
		}).Warn("Hit max chunks limit")
	}
	if tail := strings.TrimSpace(string(rest)); tail != "" {
		chunks = append(chunks, tail)
	}

	if len(chunks) <= 1 {
		return chunks
	}
	kept := chunks[:0]
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) >= c.cfg.MinChunkSize {
			kept = append(kept, chunk)
		}
	}
	return kept
}

// findSplit returns the rune offset at which to cut text, searching the
// window [target-200, target+100] for the best boundary.
func findSplit(text []rune, target int) int {
	start := max(0, target-lookBehind)
	end := min(len(text), target+lookAhead)
	if start >= end {
		return target
	}
	window := string(text[start:end])

	for _, re := range []*regexp.Regexp{paragraphBoundary, sentenceLineBoundary, sentenceBoundary} {
		if loc := lastMatch(re, window); loc != nil {
			return start + utf8.RuneCountInString(window[:loc[1]])
		}
	}
	if loc := lastMatch(wordBoundary, window); loc != nil {
		return start + utf8.RuneCountInString(window[:loc[0]])
	}
	return target
}

func lastMatch(re *regexp.Regexp, s string) []int {
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Clean collapses whitespace runs to one space, trims, and drops control
// characters. The result is what ChunkWithTarget expects for prose.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// StripControl drops control characters other than newline and tab and trims
// the result. Line structure survives, so paragraph boundaries in code
// renderings remain usable split points.
func StripControl(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(text)
}

// EstimateTokens estimates the number of tokens in a string
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}
