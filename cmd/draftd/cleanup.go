package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/draftboard/draftboard/internal/storage/sqlite"
	"github.com/draftboard/draftboard/internal/thumbs"
)

var cleanupMinAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned thumbnail files",
	Long: `Runs one orphan sweep: thumbnail files whose diagram no longer exists
and whose modification time is older than --min-age are deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		store, err := sqlite.New(ctx, cfg.DBPath(), cfg.Quota.Limits())
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer func() { _ = store.Close() }()

		thumbStore, err := thumbs.New(cfg.DataDir)
		if err != nil {
			return err
		}

		raw, err := store.DiagramIDs(ctx)
		if err != nil {
			return err
		}
		existing := make(map[string]struct{}, len(raw))
		for id := range raw {
			existing[thumbs.SanitizeID(id)] = struct{}{}
		}

		deleted, err := thumbStore.CleanupOrphans(existing, cleanupMinAge)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d orphan thumbnail(s)\n", deleted)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMinAge, "min-age", thumbs.OrphanGrace,
		"minimum orphan age before deletion")
	rootCmd.AddCommand(cleanupCmd)
}
