package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/pyingest/pkg/types"
)

type parseFlags struct {
	format    string
	recursive bool
	pattern   string
}

func newParseCmd() *cobra.Command {
	var f parseFlags
	cmd := &cobra.Command{
		Use:   "parse PATH",
		Short: "Extract code elements from a Python file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", true, "Descend into subdirectories")
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "File name glob for directories (default *.py)")
	return cmd
}

func runParse(cmd *cobra.Command, path string, f parseFlags) error {
	switch f.format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", f.format)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	a := newParserOnly()
	ctx := commandContext(cmd)

	var results []*types.ParsingResult
	if info.IsDir() {
		results, err = a.ParseDirectory(ctx, path, f.recursive, f.pattern)
		if err != nil {
			return err
		}
	} else {
		results = []*types.ParsingResult{a.ParseFile(ctx, path)}
	}

	out := cmd.OutOrStdout()
	switch f.format {
	case "json":
		return writeJSON(out, results)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		printElements(out, results)
		return nil
	}
}
