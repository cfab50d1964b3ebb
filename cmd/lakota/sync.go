package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push <remote-pod-uri> [remote-repo-name]",
	Short: "Push this repo's blobs and revisions to a remote Pod",
	Long: `Push copies every blob and revision key the remote lacks from this
repo. Transfer is blob-by-blob and content-addressed, so a re-run after
a partial failure resumes rather than duplicates. After push, the
remote's changelogs may carry multiple heads; run "lakota merge" there
if convergence is wanted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull <remote-pod-uri> [remote-repo-name]",
	Short: "Pull a remote Pod's blobs and revisions into this repo",
	Long: `Pull is push in the opposite direction: every collection, series and
blob the remote has that this repo lacks is copied in. Pull is
idempotent -- running it twice performs zero additional writes the
second time.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPull,
}

func remoteArgs(args []string) (uri, name string) {
	uri = args[0]
	name = "default"
	if len(args) > 1 {
		name = args[1]
	}
	return uri, name
}

func runPush(cmd *cobra.Command, args []string) error {
	uri, name := remoteArgs(args)
	remote, err := openRemote(uri, name)
	if err != nil {
		return err
	}
	stats, err := rt.repo.Push(context.Background(), remote)
	if err != nil {
		return err
	}
	fmt.Printf("push: %d blob(s) copied, %d skipped, %d revision(s) copied\n",
		stats.BlobsCopied, stats.BlobsSkipped, stats.RevisionsCopied)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	uri, name := remoteArgs(args)
	remote, err := openRemote(uri, name)
	if err != nil {
		return err
	}
	stats, err := rt.repo.Pull(context.Background(), remote)
	if err != nil {
		return err
	}
	fmt.Printf("pull: %d blob(s) copied, %d skipped, %d revision(s) copied\n",
		stats.BlobsCopied, stats.BlobsSkipped, stats.RevisionsCopied)
	return nil
}
