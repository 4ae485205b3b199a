// Package main provides the taskjournal binary: the HTTP server and a
// command-line client for it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/taskjournal/config"

	// Register LLM providers via init()
	_ "github.com/c360studio/taskjournal/llm/providers"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "taskjournal"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	serverURL  string
}

// load reads the layered configuration and applies flag overrides.
func (g *globals) load(stderr io.Writer) (*config.Config, error) {
	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewLoader(bootstrap).Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		if _, err := config.ParseLevel(g.logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = g.logLevel
	}
	if g.serverURL != "" {
		cfg.Client.URL = g.serverURL
	}
	return cfg, nil
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Personal task journal with LLM classification",
		Long: `Taskjournal turns free-text journal entries into categorized tasks.

Entries are classified by a language model into a fixed taxonomy of types,
categories and subcategories, stored in a relational database, and pushed
to every connected client as they change.

Run "taskjournal serve" to start the server; the other commands talk to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.serverURL, "server", "", "Server URL for client commands")

	cmd.AddCommand(
		serveCmd(g),
		migrateCmd(g),
		initCmd(),
		classifyCmd(g),
		addCmd(g),
		listCmd(g),
		showCmd(g),
		editCmd(g),
		doneCmd(g),
		logCmd(g),
		rmCmd(g),
		statsCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func serveCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, closer, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			return serve(cmd.Context(), cfg, logger, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// serve runs the server until ctx is done. A nil ln listens on
// cfg.Server.Addr.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener, opts ...AppOption) error {
	app := NewApp(cfg, logger, opts...)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown()

	logger.Info("Taskjournal ready", "version", Version, "addr", cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if ln != nil {
			return app.ServeListener(gctx, ln)
		}
		return app.Serve(gctx)
	})
	g.Go(func() error {
		return app.Resync(gctx, cfg.Feed.ResyncInterval)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Taskjournal shutdown complete")
	return nil
}

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logger, closer, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := migrate(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(nil).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
