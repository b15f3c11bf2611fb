package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unza/counseling-identity/internal/api"
	infrahttp "github.com/unza/counseling-identity/internal/infrastructure/http"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if cfg.BootstrapOnStart {
			if _, err := a.bootstrapAdmin(ctx, cfg.Admin); err != nil {
				log.Warn().Err(err).Msg("initial admin bootstrap skipped")
			}
		}

		workerCtx, stopWorkers := context.WithCancel(context.Background())
		defer stopWorkers()
		a.dispatcher.Start(workerCtx)

		e := api.NewRouter(api.Services{
			Auth:    a.auth,
			Admin:   a.admin,
			Tokens:  a.tokens,
			Users:   a.users,
			Catalog: a.catalog,
		}, infrahttp.Dependencies{Mongo: a.mongoDB, Redis: a.redis}, log)

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("identity api listening")
			if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		// SIGHUP drops cached role permissions after roles are edited out of band.
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)

		for {
			select {
			case err := <-errCh:
				stopWorkers()
				a.dispatcher.Wait()
				return fmt.Errorf("http server: %w", err)
			case <-reload:
				a.catalog.Purge()
				log.Info().Msg("role catalog cache purged")
			case sig := <-shutdown:
				log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				err := e.Shutdown(shutdownCtx)
				cancel()

				stopWorkers()
				a.dispatcher.Wait()

				if err != nil {
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}
				log.Info().Msg("server stopped")
				return nil
			}
		}
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP listen port (env: PORT)")
}
