package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bertrandchenal/lakota/pkg/collection"
	"github.com/bertrandchenal/lakota/pkg/gc"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/maintain"
	"github.com/bertrandchenal/lakota/pkg/metrics"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <collection> <label>",
	Short: "Converge a divergent series' heads",
	Long: `Merge unifies every head of a series' changelog into a single
materialised view, appending one new revision per original head so every
head reads identically afterwards. It is idempotent and a no-op if the
series is not divergent.`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("author", "cli", "author recorded on the merge commits")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	col, s, err := resolveCollectionSchema(ctx, args[0])
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, args[1], s)
	if err != nil {
		return err
	}
	author, _ := cmd.Flags().GetString("author")
	revs, err := sr.Merge(ctx, author, time.Now().UnixMicro())
	if err != nil {
		return err
	}
	fmt.Printf("merged into %d new head(s)\n", len(revs))
	return nil
}

var defragCmd = &cobra.Command{
	Use:   "defrag <collection> <label>",
	Short: "Rewrite a series' changelog into a linear, defragmented chain",
	Long: `Defrag reads the full materialised view, slices it into
SplitThreshold-sized commits, writes a fresh linear chain off the zero
sentinel and deletes the old revisions. Old segment and column blobs
become unreachable and are reclaimed by a later gc.`,
	Args: cobra.ExactArgs(2),
	RunE: runDefrag,
}

func init() {
	defragCmd.Flags().String("author", "cli", "author recorded on the defragmented commits")
}

func runDefrag(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	col, s, err := resolveCollectionSchema(ctx, args[0])
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, args[1], s)
	if err != nil {
		return err
	}
	author, _ := cmd.Flags().GetString("author")
	if err := sr.Defrag(ctx, author, time.Now().UnixMicro()); err != nil {
		return err
	}
	fmt.Println("defrag complete")
	return nil
}

var squashCmd = &cobra.Command{
	Use:   "squash <collection> <label>",
	Short: "Defrag history older than a retention cutoff",
	Long: `Squash is defrag restricted to history beyond --cutoff (RFC3339):
revisions at or before the cutoff are rewritten into a smaller set that
preserves their materialised effect.`,
	Args: cobra.ExactArgs(2),
	RunE: runSquash,
}

func init() {
	squashCmd.Flags().String("cutoff", "", "RFC3339 timestamp; revisions at or before this are squashed (required)")
	squashCmd.Flags().String("author", "cli", "author recorded on the squashed commits")
	_ = squashCmd.MarkFlagRequired("cutoff")
}

func runSquash(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	col, s, err := resolveCollectionSchema(ctx, args[0])
	if err != nil {
		return err
	}
	sr, err := col.OpenSeries(ctx, args[1], s)
	if err != nil {
		return err
	}
	cutoffStr, _ := cmd.Flags().GetString("cutoff")
	cutoff, err := time.Parse(time.RFC3339Nano, cutoffStr)
	if err != nil {
		return fmt.Errorf("--cutoff: %w", err)
	}
	author, _ := cmd.Flags().GetString("author")
	if err := sr.Squash(ctx, cutoff.UnixMicro(), author, time.Now().UnixMicro()); err != nil {
		return err
	}
	fmt.Println("squash complete")
	return nil
}

var packCmd = &cobra.Command{
	Use:   "pack <collection> <label>",
	Short: "Defrag a series then reclaim its now-unreachable blobs",
	Long: `Pack is defrag immediately followed by a repo-wide gc: it rewrites the
series into a linear chain and then sweeps the Pod for blobs the old
chain left unreachable, bounded by the same safety horizon gc always
uses.`,
	Args: cobra.ExactArgs(2),
	RunE: runPack,
}

func init() {
	packCmd.Flags().String("author", "cli", "author recorded on the defragmented commits")
	packCmd.Flags().Duration("horizon", gc.DefaultSafetyHorizon, "gc safety horizon")
}

func runPack(cmd *cobra.Command, args []string) error {
	if err := runDefrag(cmd, args); err != nil {
		return err
	}
	return runGC(cmd, args[:0])
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim blobs unreachable from any live revision",
	Long: `GC computes the set of Pod keys reachable from the repo's registry,
every collection's registry and every collection's registered series,
then deletes unreachable commit/segment/column keys older than
--horizon.`,
	RunE: runGCCmd,
}

func init() {
	gcCmd.Flags().Duration("horizon", gc.DefaultSafetyHorizon, "minimum blob age before an unreachable key is deleted")
}

func runGCCmd(cmd *cobra.Command, args []string) error {
	return runGC(cmd, args)
}

// runGC is shared by the gc and pack commands.
func runGC(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	horizon, _ := cmd.Flags().GetDuration("horizon")

	reachable := gc.NewReachable()
	if err := gc.CollectChangelog(ctx, rt.pod, collection.RegistrySchema, rt.repo.Changelog(), reachable); err != nil {
		return err
	}

	entries, err := rt.repo.Collections(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		col, ok, err := rt.repo.Collection(ctx, entry.Label)
		if err != nil || !ok {
			continue
		}
		if err := gc.CollectChangelog(ctx, rt.pod, collection.RegistrySchema, col.Changelog(), reachable); err != nil {
			return err
		}

		s, err := parseSchemaBytes(entry.Meta)
		if err != nil {
			continue // registry entry predates a readable schema; skip its series
		}
		labels, err := col.List(ctx)
		if err != nil {
			return err
		}
		for _, l := range labels {
			sr, err := col.OpenSeries(ctx, l.Label, s)
			if err != nil {
				continue
			}
			if err := gc.CollectChangelog(ctx, rt.pod, s, sr.Changelog(), reachable); err != nil {
				return err
			}
		}
	}

	deleted, err := gc.Sweep(ctx, rt.pod, reachable, horizon)
	if err != nil {
		return err
	}
	fmt.Printf("gc: deleted %d unreachable blob(s)\n", deleted)
	return nil
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the periodic gc/merge/defrag scheduler in the foreground",
	Long: `Maintain starts pkg/maintain's background scheduler and blocks,
periodically running gc (and, if configured, auto-merge/auto-defrag on
--watch'ed series). Exposes Prometheus metrics on --metrics-addr.`,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().Duration("interval", maintain.DefaultInterval, "maintenance cycle interval")
	maintainCmd.Flags().Duration("horizon", gc.DefaultSafetyHorizon, "gc safety horizon")
	maintainCmd.Flags().Bool("auto-merge", false, "auto-merge watched series on divergence")
	maintainCmd.Flags().Int("auto-defrag-at", 0, "auto-defrag a watched series once its log exceeds this many revisions (0 disables)")
	maintainCmd.Flags().StringSlice("watch", nil, "collection/label pairs to watch for auto-merge/auto-defrag, repeatable")
	maintainCmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090 (empty disables)")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	interval, _ := cmd.Flags().GetDuration("interval")
	horizon, _ := cmd.Flags().GetDuration("horizon")
	autoMerge, _ := cmd.Flags().GetBool("auto-merge")
	autoDefragAt, _ := cmd.Flags().GetInt("auto-defrag-at")
	watch, _ := cmd.Flags().GetStringSlice("watch")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	sched := maintain.NewScheduler(rt.repo, interval)
	sched.SetSafetyHorizon(horizon)
	sched.SetAutoMerge(autoMerge)
	sched.SetAutoDefragThreshold(autoDefragAt)

	for _, w := range watch {
		collectionName, label, ok := splitWatchSpec(w)
		if !ok {
			return fmt.Errorf("--watch %q: expected collection/label", w)
		}
		_, s, err := resolveCollectionSchema(ctx, collectionName)
		if err != nil {
			return err
		}
		sched.Watch(collectionName, label, s)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			logger := log.WithComponent("maintain")
			logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sched.Start()
	defer sched.Stop()
	select {} // run until killed
}

func splitWatchSpec(spec string) (collectionName, label string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '/' {
			return spec[:i], spec[i+1:], true
		}
	}
	return "", "", false
}
