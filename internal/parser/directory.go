package parser

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pyingest/pkg/types"
)

// DefaultFilePattern selects Python files in ParseDirectory
const DefaultFilePattern = "*.py"

// ParseDirectory parses every file under root whose base name matches pattern.
// Files are parsed independently; one file's failure never aborts the others.
// Results are returned in lexical path order.
func (p *Parser) ParseDirectory(ctx context.Context, root string, recursive bool, pattern string) ([]*types.ParsingResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if pattern == "" {
		pattern = DefaultFilePattern
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && matcher.Match(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"directory": root,
		"files":     len(files),
	}).Info("Found Python files")

	results := make([]*types.ParsingResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range files {
		g.Go(func() error {
			results[i] = p.ParseFile(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	p.logger.WithFields(logrus.Fields{
		"directory":  root,
		"successful": successful,
		"total":      len(results),
	}).Infof("Parsed %d/%d files successfully", successful, len(results))

	return results, nil
}
