package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/ingest"
	"github.com/integratec/plant-crm/internal/store"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stored facilities that fail the manufacturing screen",
	Long:  "Re-screens every stored facility through the current ruleset and deletes the ones that no longer pass, e.g. after a ruleset update.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var toDelete []string
		offset := 0
		for {
			page, err := st.ListFacilities(ctx, store.FacilityFilter{Limit: 1000, Offset: offset})
			if err != nil {
				return err
			}
			for _, f := range page {
				if ingest.ExcludedStored(f) {
					zap.L().Info("flagged for removal",
						zap.String("id", f.ID),
						zap.String("name", f.Name),
						zap.String("primary_type", f.PrimaryType),
					)
					toDelete = append(toDelete, f.ID)
				}
			}
			if len(page) < 1000 {
				break
			}
			offset += len(page)
		}

		if cleanupDryRun {
			fmt.Printf("dry run: %d facilities would be removed\n", len(toDelete))
			return nil
		}

		n, err := st.DeleteFacilities(ctx, toDelete)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d non-manufacturing facilities\n", n)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be deleted without deleting")
	rootCmd.AddCommand(cleanupCmd)
}
