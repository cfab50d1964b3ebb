package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/series"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <collection> <label>",
	Short: "Write CSV rows into a series",
	Long: `Write parses CSV from --file (or stdin if --file is omitted), with a
header row naming schema columns in any order, and appends it as a new
revision. Rows are cast, sorted by index columns and deduplicated
(keeping the last occurrence) before being committed.`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().String("file", "", "CSV file to read (default: stdin)")
	writeCmd.Flags().String("author", "cli", "author recorded on the commit")
}

func runWrite(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	collectionName, label := args[0], args[1]
	filePath, _ := cmd.Flags().GetString("file")
	author, _ := cmd.Flags().GetString("author")

	col, s, err := resolveCollectionSchema(ctx, collectionName)
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, label, s)
	if err != nil {
		return err
	}

	in := os.Stdin
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("open %q: %w", filePath, err)
		}
		defer f.Close()
		in = f
	}

	fr, err := readCSVFrame(s, in)
	if err != nil {
		return err
	}

	rev, err := sr.Write(ctx, fr, author, time.Now().UnixMicro())
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d rows, revision %s\n", fr.Len(), rev.Key())
	return nil
}

var readCmd = &cobra.Command{
	Use:   "read <collection> <label>",
	Short: "Read a series as CSV",
	Long: `Read materialises a series' view over [--start, --stop], optionally
bounded by --before (an RFC3339 epoch cutoff for divergence-tolerant
snapshots), and prints it as CSV. Index columns are filled positionally:
--start and --stop take one value per index column, comma-separated, in
schema order.`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	readCmd.Flags().String("start", "", "comma-separated lower bound, one value per index column")
	readCmd.Flags().String("stop", "", "comma-separated upper bound, one value per index column")
	readCmd.Flags().String("before", "", "RFC3339 timestamp cutoff; revisions after it are ignored")
	readCmd.Flags().String("closed", "both", "which range ends are inclusive: both, left, right, neither")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	collectionName, label := args[0], args[1]

	col, s, err := resolveCollectionSchema(ctx, collectionName)
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, label, s)
	if err != nil {
		return err
	}

	q, err := buildQuery(cmd, s)
	if err != nil {
		return err
	}

	view, err := sr.Read(ctx, q)
	if err != nil {
		return err
	}
	return writeCSVFrame(s, view, os.Stdout)
}

func buildQuery(cmd *cobra.Command, s schema.Schema) (series.Query, error) {
	startStr, _ := cmd.Flags().GetString("start")
	stopStr, _ := cmd.Flags().GetString("stop")
	beforeStr, _ := cmd.Flags().GetString("before")
	closedStr, _ := cmd.Flags().GetString("closed")

	q := series.Query{}

	if startStr != "" {
		b, err := encodeBoundString(s, startStr)
		if err != nil {
			return q, fmt.Errorf("--start: %w", err)
		}
		q.Start = b
	}
	if stopStr != "" {
		b, err := encodeBoundString(s, stopStr)
		if err != nil {
			return q, fmt.Errorf("--stop: %w", err)
		}
		q.Stop = b
	}
	if beforeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			return q, fmt.Errorf("--before: parse RFC3339 timestamp: %w", err)
		}
		q.Before = t.UnixMicro()
	}

	switch closedStr {
	case "both", "":
		q.Closed = series.ClosedBoth
	case "left":
		q.Closed = series.ClosedLeft
	case "right":
		q.Closed = series.ClosedRight
	case "neither":
		q.Closed = series.ClosedNeither
	default:
		return q, fmt.Errorf("--closed: unknown value %q", closedStr)
	}
	return q, nil
}

// encodeBoundString parses a comma-separated index bound (one value per
// index column, in schema order) into the encoded tuple commit.Intersect
// and commit.Slice compare against.
func encodeBoundString(s schema.Schema, raw string) ([]byte, error) {
	indexCols := s.IndexColumns()
	parts := strings.Split(raw, ",")
	if len(parts) != len(indexCols) {
		return nil, fmt.Errorf("expected %d comma-separated values, got %d", len(indexCols), len(parts))
	}
	values := make([]any, len(indexCols))
	for i, col := range indexCols {
		v, err := parseBoundValue(col, parts[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		values[i] = v
	}
	return commit.EncodeBound(s, values)
}

func parseBoundValue(col schema.Column, v string) (any, error) {
	switch col.Type {
	case schema.Int64:
		return strconv.ParseInt(v, 10, 64)
	case schema.Bool:
		return strconv.ParseBool(v)
	case schema.String:
		return v, nil
	case schema.Bytes:
		return []byte(v), nil
	case schema.Date:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, err
		}
		return t.Unix() / 86400, nil
	case schema.Timestamp:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		return ticksForUnit(t, col.Unit), nil
	default:
		return nil, fmt.Errorf("unsupported index column type %q", col.Type)
	}
}

var logCmd = &cobra.Command{
	Use:   "log <collection> <label>",
	Short: "Show a series' changelog, newest first",
	Long: `Log prints every revision in the series' changelog, newest-first.
A series with more than one head is divergent; divergence is flagged but
is not an error -- run "lakota merge" to converge it.`,
	Args: cobra.ExactArgs(2),
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	collectionName, label := args[0], args[1]

	col, s, err := resolveCollectionSchema(ctx, collectionName)
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, label, s)
	if err != nil {
		return err
	}

	revs, err := sr.Log(ctx)
	if err != nil {
		return err
	}
	heads, err := sr.Heads(ctx)
	if err != nil {
		return err
	}
	if len(heads) > 1 {
		fmt.Fprintf(os.Stderr, "warning: %d divergent heads (DIVERGENT_HEADS); run \"lakota merge\" to converge\n", len(heads))
	}
	for _, r := range revs {
		c, err := commit.Load(ctx, rt.pod, r.Own.Digest)
		if err != nil {
			fmt.Printf("%s  author=? rows=?\n", r.Key())
			continue
		}
		fmt.Printf("%s  author=%s rows=%d tstamp=%d\n", r.Key(), c.Author, c.RowCount, c.Tstamp)
	}
	return nil
}
