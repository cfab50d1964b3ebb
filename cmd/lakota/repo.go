package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bertrandchenal/lakota/pkg/collection"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <collection> <label>",
	Short: "Register a series label, creating its collection if needed",
	Long: `Create registers a new series label under a collection.

If the collection does not yet exist, --schema is required and its YAML
contents become the collection's shared schema. If the collection already
exists, --schema is ignored and the existing schema applies.

Examples:
  lakota create temperature Brussels --schema schema.yaml
  lakota create temperature Paris`,
	Args: cobra.ExactArgs(2),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().String("schema", "", "YAML schema file (required to create a new collection)")
	createCmd.Flags().String("author", "cli", "author recorded on the registry commit")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	collectionName, label := args[0], args[1]
	schemaPath, _ := cmd.Flags().GetString("schema")
	author, _ := cmd.Flags().GetString("author")
	now := time.Now().UnixMicro()

	col, ok, err := rt.repo.Collection(ctx, collectionName)
	if err != nil {
		return err
	}
	if !ok {
		if schemaPath == "" {
			return fmt.Errorf("collection %q does not exist; pass --schema to create it", collectionName)
		}
		_, raw, err := loadSchemaFile(schemaPath)
		if err != nil {
			return err
		}
		col, err = rt.repo.CreateCollection(ctx, collectionName, raw, author, now)
		if err != nil {
			return err
		}
	}

	identity := digest.Sum([]byte(uuid.NewString()))
	if _, err := col.Put(ctx, label, identity, nil, author, now); err != nil {
		return err
	}
	fmt.Printf("created %s/%s (identity %s)\n", collectionName, label, identity)
	return nil
}

var lsCmd = &cobra.Command{
	Use:   "ls [collection]",
	Short: "List collections, or labels within a collection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 0 {
		entries, err := rt.repo.Collections(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.Label)
		}
		return nil
	}

	col, ok, err := rt.repo.Collection(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %q not found", args[0])
	}
	labels, err := col.List(ctx)
	if err != nil {
		return err
	}
	for _, l := range labels {
		fmt.Println(l.Label)
	}
	return nil
}

// resolveCollectionSchema finds collection name's registry entry in the
// repo and parses its schema out of the meta bytes stashed there by
// runCreate.
func resolveCollectionSchema(ctx context.Context, name string) (*collection.Collection, schema.Schema, error) {
	col, ok, err := rt.repo.Collection(ctx, name)
	if err != nil {
		return nil, schema.Schema{}, err
	}
	if !ok {
		return nil, schema.Schema{}, fmt.Errorf("collection %q not found", name)
	}

	entries, err := rt.repo.Collections(ctx)
	if err != nil {
		return nil, schema.Schema{}, err
	}
	for _, e := range entries {
		if e.Label != name {
			continue
		}
		s, err := parseSchemaBytes(e.Meta)
		if err != nil {
			return nil, schema.Schema{}, fmt.Errorf("collection %q: %w", name, err)
		}
		return col, s, nil
	}
	return nil, schema.Schema{}, fmt.Errorf("collection %q: registry entry missing", name)
}
