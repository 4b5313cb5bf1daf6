package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/docmcp/documenter-mcp-server/internal/config"
	"github.com/docmcp/documenter-mcp-server/internal/indexing"
	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
	"github.com/spf13/cobra"
)

var (
	flagDumpJSON     bool
	flagDumpCategory string
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a search index file against the schema and the round-trip layout",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Re-serialize a search index file to stdout in the generator's layout",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var statsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Show record counts per category and index entry sizes",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	dumpCmd.Flags().BoolVar(&flagDumpJSON, "json", false, `Write the bare {"docs":[...]} form instead of JavaScript`)
	dumpCmd.Flags().StringVar(&flagDumpCategory, "category", "", "Only keep records of this category")
	rootCmd.AddCommand(validateCmd, dumpCmd, statsCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	result, err := searchindex.Validate(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s  %s (%s)\n", e.Path, e.Message, e.Code)
		}
		return fmt.Errorf("%s: %s", args[0], result.Summary)
	}

	ds, err := searchindex.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	var again []byte
	if searchindex.IsJS(data) {
		again, err = ds.MarshalJS()
	} else {
		again, err = ds.MarshalJSON()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ %s\n", result.Summary)
	if bytes.Equal(again, data) {
		fmt.Fprintln(out, "✓ Re-serializes byte for byte")
	} else {
		fmt.Fprintln(out, "⚠️  Re-serialized output differs from the input (run dump to normalize)")
	}
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	if flagDumpCategory != "" && !searchindex.Category(flagDumpCategory).Valid() {
		return fmt.Errorf("unknown category %q", flagDumpCategory)
	}

	ds, err := searchindex.ParseFile(args[0])
	if err != nil {
		return err
	}

	if flagDumpCategory != "" {
		var kept []searchindex.Record
		for _, rec := range ds.Load() {
			if string(rec.Category) == flagDumpCategory {
				kept = append(kept, rec)
			}
		}
		if ds, err = searchindex.New(kept); err != nil {
			return err
		}
	}

	var data []byte
	if flagDumpJSON {
		data, err = ds.MarshalJSON()
	} else {
		data, err = ds.MarshalJS()
	}
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runStats(cmd *cobra.Command, args []string) error {
	ds, err := searchindex.ParseFile(args[0])
	if err != nil {
		return err
	}

	counts := ds.Categories()
	cats := make([]searchindex.Category, 0, len(counts))
	for cat := range counts {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tRECORDS")
	for _, cat := range cats {
		fmt.Fprintf(w, "%s\t%d\n", cat, counts[cat])
	}
	fmt.Fprintf(w, "total\t%d\n", ds.Len())
	if err := w.Flush(); err != nil {
		return err
	}

	entries := indexing.BuildEntries(ds, config.DefaultBaseURL)
	fmt.Fprintf(out, "\n%d index entries, avg %d tokens, %d over %d tokens\n",
		len(entries), indexing.AverageTokens(entries), indexing.CountOversized(entries), indexing.MaxEntryTokens)
	return nil
}
