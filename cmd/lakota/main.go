// Command lakota is the CLI surface over a Pod-backed repo: create,
// write, read, ls, log, merge, defrag, squash, pack, gc, push and pull.
// One root cobra command, one file per concern.
package main

import (
	"fmt"
	"os"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/repo"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a lakotaerrs.Kind to a process exit code: 0 success,
// 1 user error, 2 data error, 3 remote I/O error.
func exitCode(err error) int {
	kind, ok := lakotaerrs.Of(err)
	if !ok {
		return 1
	}
	switch kind {
	case lakotaerrs.KindDataMissing:
		return 2
	case lakotaerrs.KindRemoteIO, lakotaerrs.KindPodIO:
		return 3
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "lakota",
	Short: "Lakota - version-controlled columnar store for numerical series",
	Long: `Lakota is a version-controlled columnar store for numerical series.

It layers a Git-inspired changelog over a content-addressed blob store to
give versioned history, optimistic concurrency without a coordinator,
range-indexed reads, and cheap synchronisation between storages.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lakota version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("pod", "memory://", "Pod URI (memory://, file://path, s3://bucket/prefix, or a cache chain: uri+uri or [uri, uri])")
	rootCmd.PersistentFlags().String("repo", "default", "repo name")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(defragCmd)
	rootCmd.AddCommand(squashCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(maintainCmd)
}

// runtime bundles the Pod/Repo handles every subcommand needs, built once
// in PersistentPreRunE from the --pod/--repo flags.
type runtime struct {
	pod  pod.Pod
	repo *repo.Repo
}

func initRuntime(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})

	uri, _ := cmd.Flags().GetString("pod")
	p, err := pod.Open(uri)
	if err != nil {
		return fmt.Errorf("open pod %q: %w", uri, err)
	}
	name, _ := cmd.Flags().GetString("repo")

	rt = &runtime{pod: p, repo: repo.Open(p, name)}
	return nil
}

// rt is populated by initRuntime before any subcommand's RunE runs; the
// subcommands close over it the way they close over their flag state.
var rt *runtime

func openRemote(uri, name string) (*repo.Repo, error) {
	p, err := pod.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: open remote pod %q: %v", lakotaerrs.RemoteIO, uri, err)
	}
	return repo.Open(p, name), nil
}
