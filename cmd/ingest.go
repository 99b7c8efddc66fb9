package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/integratec/plant-crm/internal/ingest"
)

var ingestLocation string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the facility discovery pipeline",
	Long:  "Searches the configured phrases within the target area, screens and grades the results, and upserts survivors into the facility store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Runner == nil {
			return eris.New("google api key is required for ingestion")
		}

		result, err := env.Runner.Run(ctx, ingest.Options{Location: ingestLocation})
		if err != nil {
			return err
		}

		fmt.Printf("added %d, updated %d, %d facilities total\n",
			result.Added, result.Updated, result.Total)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLocation, "location", "",
		"search area (city or zip; defaults to the built-in metro viewport)")
	rootCmd.AddCommand(ingestCmd)
}
