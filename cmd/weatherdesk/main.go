// Package main is the entry point for the weatherdesk server and CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weatherdesk/config"
	"weatherdesk/internal/app"
	"weatherdesk/internal/logging"
	"weatherdesk/internal/version"
)

const shutdownTimeout = 30 * time.Second

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	output     string
	loaded     *config.LoadResult
	logger     *slog.Logger
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "weatherdesk",
		Short:         "Cached QWeather lookups from the terminal or over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config.yaml (default: config.yaml, config/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.serve(cmd.Context()) },
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup <city>",
		Short: "Look up a city and show its weather",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Service().Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, res)
			})
		},
	}
	lookupCmd.Flags().StringVarP(&c.output, "output", "o", outputText, "output format (text, json)")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Show the weather of the last looked-up city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Service().Refresh(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, res)
			})
		},
	}
	refreshCmd.Flags().StringVarP(&c.output, "output", "o", outputText, "output format (text, json)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Service().History(ctx)
				if err != nil {
					return err
				}
				return renderHistory(cmd.OutOrStdout(), c.output, view)
			})
		},
	}
	historyCmd.Flags().StringVarP(&c.output, "output", "o", outputText, "output format (text, json)")

	clearCacheCmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Service().ClearCache(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}

	root.AddCommand(serveCmd, lookupCmd, refreshCmd, historyCmd, clearCacheCmd, versionCmd)
	return root
}

func (c *cli) load() error {
	loaded, err := config.LoadFrom(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.loaded = loaded
	c.logger = logging.Setup(logging.Config{
		Level:  loaded.Config.Log.Level,
		Format: loaded.Config.Log.Format,
	})
	if loaded.Path != "" {
		c.logger.Debug("configuration loaded", "path", loaded.Path)
	}
	return nil
}

// withApp builds the application, runs fn and tears the application down.
func (c *cli) withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, app.Config{AppConfig: c.loaded, Logger: c.logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Shutdown(context.Background()); err != nil {
			c.logger.Warn("shutdown failed", "error", err)
		}
	}()
	return fn(ctx, a)
}

func (c *cli) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.Info("starting weatherdesk",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	a, err := app.New(ctx, app.Config{AppConfig: c.loaded, Logger: c.logger})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		c.logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("shutdown error", "error", err)
		}
	}()

	return a.Start(":" + c.loaded.Config.Server.Port)
}
