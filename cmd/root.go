package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "plant-crm",
	Short: "Manufacturing-facility prospecting CRM",
	Long:  "Discovers manufacturing facilities via Places text search, screens and grades them for relevance, and serves the sales CRM API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
