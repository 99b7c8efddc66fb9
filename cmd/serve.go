package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/server"
	"github.com/integratec/plant-crm/internal/uploads"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CRM API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := []server.Option{}
		if env.Places != nil {
			opts = append(opts, server.WithPlaces(env.Places))
		}
		if env.Hunter != nil {
			opts = append(opts, server.WithHunter(env.Hunter))
		}
		if env.Ref != nil {
			opts = append(opts, server.WithRefCache(env.Ref))
		}
		if env.Runner != nil {
			opts = append(opts,
				server.WithRunner(env.Runner, time.Duration(cfg.Server.PipelineTimeoutMins)*time.Minute))
		}

		api := server.New(env.Store, uploads.New(cfg.Server.UploadsDir), opts...)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
