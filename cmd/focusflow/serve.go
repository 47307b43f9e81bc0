package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"focusflow/backend/internal/clock"
	"focusflow/backend/internal/config"
	"focusflow/backend/internal/db"
	"focusflow/backend/internal/eventbus"
	"focusflow/backend/internal/handler"
	"focusflow/backend/internal/repository"
	"focusflow/backend/internal/router"
	"focusflow/backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			database, err := db.OpenSQLite(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			if err := db.RunMigrations(ctx, database, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			userRepo := repository.NewUserRepository(database)
			pomodoroRepo := repository.NewPomodoroRepository(database)

			authService := service.NewAuthService(userRepo, pomodoroRepo, cfg.JWTSecret, cfg.TokenTTL, cfg.Pomodoro)
			pomodoroService := service.NewPomodoroService(pomodoroRepo, eventbus.New(logger), clock.Real{}, logger)

			authHandler := handler.NewAuthHandler(authService)
			pomodoroHandler := handler.NewPomodoroHandler(pomodoroService)

			engine := router.New(logger, authService, authHandler, pomodoroHandler, cfg.CORSOrigins)
			server := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http listening", "addr", server.Addr, "db", cfg.DBPath)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				pomodoroService.Shutdown()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("run server: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			pomodoroService.Shutdown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			return nil
		},
	}
}
