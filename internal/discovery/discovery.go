package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

const (
	// DefaultMaxFileSize is the largest file processed, in bytes
	DefaultMaxFileSize int64 = 2_000_000

	// DefaultMaxFileCount bounds the files marked for processing per run
	DefaultMaxFileCount = 500

	// SkipEmpty is the skip reason for zero-byte files
	SkipEmpty = "Empty file"
)

// DefaultIncludePatterns selects source, docs and project configuration
var DefaultIncludePatterns = []string{
	"**/*.py", "**/*.md", "**/*.yml", "**/*.yaml",
	"**/*.toml", "**/*.json", "**/*.sql", "**/*.sh",
	"**/*.js", "**/*.ts", "**/*.dockerfile", "**/Dockerfile",
}

// DefaultExcludePatterns skips caches, virtualenvs, VCS data and build output
var DefaultExcludePatterns = []string{
	"__pycache__/**", ".pytest_cache/**", ".git/**",
	".venv/**", "venv/**", "*.pyc", ".env*",
	"node_modules/**", ".mypy_cache/**", "*.egg-info/**",
	"dist/**", "build/**", ".coverage", "htmlcov/**",
	"logs/**", "*.log", "tmp/**", "temp/**",
}

// DefaultCodeExtensions marks files handed to the structural parser
var DefaultCodeExtensions = []string{".py"}

// Options controls which files a walk selects. Nil pattern slices take the
// defaults; an empty non-nil slice means no patterns.
type Options struct {
	IncludePatterns []string `json:"include_patterns" yaml:"include_patterns" mapstructure:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	MaxFileSize     int64    `json:"max_file_size" yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxFileCount    int      `json:"max_file_count" yaml:"max_file_count" mapstructure:"max_file_count"`
	CodeExtensions  []string `json:"code_extensions" yaml:"code_extensions" mapstructure:"code_extensions"`
}

// DefaultOptions returns the default discovery options
func DefaultOptions() Options {
	return Options{
		IncludePatterns: append([]string(nil), DefaultIncludePatterns...),
		ExcludePatterns: append([]string(nil), DefaultExcludePatterns...),
		MaxFileSize:     DefaultMaxFileSize,
		MaxFileCount:    DefaultMaxFileCount,
		CodeExtensions:  append([]string(nil), DefaultCodeExtensions...),
	}
}

func (o Options) withDefaults() Options {
	if o.IncludePatterns == nil {
		o.IncludePatterns = append([]string(nil), DefaultIncludePatterns...)
	}
	if o.ExcludePatterns == nil {
		o.ExcludePatterns = append([]string(nil), DefaultExcludePatterns...)
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.CodeExtensions == nil {
		o.CodeExtensions = append([]string(nil), DefaultCodeExtensions...)
	}
	return o
}

// pattern is a compiled glob. A leading "**/" also matches files at the root.
type pattern struct {
	raw  string
	g    glob.Glob
	root glob.Glob
}

func compile(raw string) (pattern, error) {
	g, err := glob.Compile(raw)
	if err != nil {
		return pattern{}, fmt.Errorf("invalid pattern %q: %w", raw, err)
	}
	p := pattern{raw: raw, g: g}
	if rest, ok := strings.CutPrefix(raw, "**/"); ok && rest != "" {
		if p.root, err = glob.Compile(rest); err != nil {
			return pattern{}, fmt.Errorf("invalid pattern %q: %w", raw, err)
		}
	}
	return p, nil
}

func (p pattern) match(relPath string) bool {
	if p.g.Match(relPath) {
		return true
	}
	return p.root != nil && !strings.Contains(relPath, "/") && p.root.Match(relPath)
}

// Discoverer walks a directory tree and decides which files to process
type Discoverer struct {
	opts     Options
	include  []pattern
	exclude  []pattern
	codeExts map[string]struct{}
	logger   *logrus.Logger
}

// New compiles the options' patterns. A nil logger discards output.
func New(opts Options, logger *logrus.Logger) (*Discoverer, error) {
	opts = opts.withDefaults()

	d := &Discoverer{
		opts:     opts,
		codeExts: make(map[string]struct{}, len(opts.CodeExtensions)),
		logger:   logging.OrDiscard(logger),
	}
	for _, raw := range opts.IncludePatterns {
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		d.include = append(d.include, p)
	}
	for _, raw := range opts.ExcludePatterns {
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		d.exclude = append(d.exclude, p)
	}
	for _, ext := range opts.CodeExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		d.codeExts[strings.ToLower(ext)] = struct{}{}
	}
	return d, nil
}

// Options returns the effective options
func (d *Discoverer) Options() Options {
	return d.opts
}

// Discover walks root in lexical order. Every regular file visited is
// returned with its decision; the walk stops once MaxFileCount files are
// marked for processing.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]types.DiscoveredFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, types.NewProcessingError(types.ErrIO, root, fmt.Errorf("repository path does not exist: %w", err))
	}
	if !info.IsDir() {
		return nil, types.NewProcessingError(types.ErrIO, root, errors.New("repository path is not a directory"))
	}

	files := make([]types.DiscoveredFile, 0)
	toProcess := 0

	err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == absRoot {
				return err
			}
			d.logger.WithError(err).WithField("path", path).Warn("Error processing file")
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			d.logger.WithError(err).WithField("path", path).Warn("Error processing file")
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		shouldProcess, reason := d.Decide(rel, fi.Size())
		files = append(files, types.DiscoveredFile{
			AbsolutePath:  path,
			RelativePath:  rel,
			SizeBytes:     fi.Size(),
			IsCode:        d.IsCode(rel),
			ShouldProcess: shouldProcess,
			SkipReason:    reason,
		})

		if shouldProcess {
			toProcess++
			if d.opts.MaxFileCount > 0 && toProcess >= d.opts.MaxFileCount {
				d.logger.WithFields(logrus.Fields{
					"max_files": d.opts.MaxFileCount,
					"kind":      types.ErrLimitExceeded.Error(),
				}).Warnf("Hit max files limit (%d), stopping discovery", d.opts.MaxFileCount)
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	counts := Count(files)
	d.logger.WithFields(logrus.Fields{
		"root":       absRoot,
		"total":      counts.Total,
		"code":       counts.Code,
		"to_process": counts.ToProcess,
	}).Infof("File discovery: %d total, %d code, %d to process", counts.Total, counts.Code, counts.ToProcess)

	return files, nil
}

// Decide applies the exclude, size and include rules to one relative path
func (d *Discoverer) Decide(relPath string, size int64) (bool, string) {
	for _, p := range d.exclude {
		if p.match(relPath) {
			return false, "Excluded by pattern: " + p.raw
		}
	}
	if size == 0 {
		return false, SkipEmpty
	}
	if size > d.opts.MaxFileSize {
		return false, fmt.Sprintf("File too large: %d > %d", size, d.opts.MaxFileSize)
	}
	for _, p := range d.include {
		if p.match(relPath) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("Not matched by include patterns: %q", d.opts.IncludePatterns)
}

// IsCode reports whether the path has a configured code extension
func (d *Discoverer) IsCode(path string) bool {
	_, ok := d.codeExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Counts summarizes a discovery result
type Counts struct {
	Total     int
	Code      int
	ToProcess int
}

// Count tallies discovered files
func Count(files []types.DiscoveredFile) Counts {
	var c Counts
	for _, f := range files {
		c.Total++
		if f.IsCode {
			c.Code++
		}
		if f.ShouldProcess {
			c.ToProcess++
		}
	}
	return c
}

// Selected returns the files marked for processing, in discovery order
func Selected(files []types.DiscoveredFile) []types.DiscoveredFile {
	out := make([]types.DiscoveredFile, 0, len(files))
	for _, f := range files {
		if f.ShouldProcess {
			out = append(out, f)
		}
	}
	return out
}
