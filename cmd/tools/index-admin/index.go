package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nisu-recommender/internal/recommendation/indexing"
)

const defaultBatchSize = 500

var (
	indexFile      string
	indexBatchSize int
	indexRefresh   bool
	indexJSON      bool
)

var indexCmd = &cobra.Command{
	Use:   "index winkers|events",
	Short: "Embed and index records from a JSON file",
	Long: `Embed and index winkers or events read from a JSON file.

The file holds either an array of records or an object with a "winkers" or
"events" array, the same shape the indexing workers accept. Use "-" to read
standard input.

Examples:
  index-admin index winkers --file winkers.json
  index-admin index events --file events.json --refresh`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"winkers", "events"},
	RunE:      runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringVarP(&indexFile, "file", "f", "", "JSON file with the records (- for stdin)")
	indexCmd.Flags().IntVarP(&indexBatchSize, "batch-size", "b", defaultBatchSize, "Records per bulk request")
	indexCmd.Flags().BoolVar(&indexRefresh, "refresh", false, "Refresh the index after each batch")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "Print the reports as JSON")
	_ = indexCmd.MarkFlagRequired("file")
}

type indexFunc func(ctx context.Context, index string, records []map[string]interface{}, refresh bool) (*indexing.Report, error)

func runIndex(cmd *cobra.Command, args []string) error {
	entity := args[0]

	raw, err := readInput(cmd.InOrStdin(), indexFile)
	if err != nil {
		return err
	}
	records, err := decodeRecords(raw, entity)
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	ix := e.indexer()

	var (
		index string
		write indexFunc
	)
	switch entity {
	case "winkers":
		index, write = e.cfg.Recommender.Indices.Winkers, ix.IndexWinkers
	case "events":
		index, write = e.cfg.Recommender.Indices.Events, ix.IndexEvents
	}

	total := &indexing.Report{Index: index}
	for _, batch := range chunk(records, indexBatchSize) {
		report, err := write(cmd.Context(), index, batch, indexRefresh)
		if err != nil {
			return fmt.Errorf("index %s: %w", index, err)
		}
		total.Indexed += report.Indexed
		total.Failed += report.Failed
		total.Errors = append(total.Errors, report.Errors...)
	}

	out := cmd.OutOrStdout()
	if indexJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(total)
	}
	fmt.Fprintf(out, "%s: %d indexed, %d failed\n", index, total.Indexed, total.Failed)
	for _, item := range total.Errors {
		fmt.Fprintf(out, "  %s: %s\n", item.ID, item.Reason)
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

// decodeRecords accepts a bare array or the worker payload shape. Numbers
// stay json.Number so ids are not rounded.
func decodeRecords(raw []byte, entity string) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var records []map[string]interface{}
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}

	var payload map[string]json.RawMessage
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	list, ok := payload[entity]
	if !ok {
		return nil, fmt.Errorf("payload has no %q array", entity)
	}

	var records []map[string]interface{}
	inner := json.NewDecoder(bytes.NewReader(list))
	inner.UseNumber()
	if err := inner.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity, err)
	}
	return records, nil
}

func chunk(records []map[string]interface{}, size int) [][]map[string]interface{} {
	if size < 1 {
		size = defaultBatchSize
	}
	var out [][]map[string]interface{}
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
