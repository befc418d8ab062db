package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/rocketscienceinc/tictactoe-realtime/internal"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/config"
	"github.com/rocketscienceinc/tictactoe-realtime/internal/entity"
)

const credentialEnv = "TICTACTOE_CREDENTIAL"

// main - is the entry point of the application. It wires the commands and runs the selected one.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newRootCmd().ExecuteContext(ctx))
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tictactoe",
		Short:         "Real-time tic-tac-toe server and player client",
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yml (default ./config.yml)")

	load := func() *config.Config {
		return initConfig(configPath)
	}

	cmd.AddCommand(newServeCmd(load), newPlayCmd(load), newCredentialCmd(load))
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func newServeCmd(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the matchmaking server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := load()
			logger := initLogger(conf, os.Stdout)

			if err := app.RunServer(cmd.Context(), logger, conf); err != nil {
				return fmt.Errorf("app run failed: %w", err)
			}

			return nil
		},
	}
}

func newPlayCmd(load func() *config.Config) *cobra.Command {
	var credential, strategy string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join matchmaking and play one game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := load()

			if cmd.Flags().Changed("strategy") {
				conf.Client.Strategy = strategy
			}

			if credential == "" {
				credential = os.Getenv(credentialEnv)
			}

			if credential == "" {
				return fmt.Errorf("credential is required: pass --credential or set %s", credentialEnv)
			}

			// The board goes to stdout, logs to stderr.
			logger := initLogger(conf, os.Stderr)

			return app.RunClient(cmd.Context(), logger, conf, credential, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&credential, "credential", "", "signed player credential (or $"+credentialEnv+")")
	fs.StringVar(&strategy, "strategy", "", "play automatically: random or smart")

	return cmd
}

func newCredentialCmd(load func() *config.Config) *cobra.Command {
	var (
		id       int64
		username string
	)

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Sign a player credential with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := app.IssueCredential(load(), entity.Player{ID: id, Username: username})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)

			return err
		},
	}

	fs := cmd.Flags()
	fs.Int64Var(&id, "id", 0, "player id")
	fs.StringVar(&username, "username", "", "player name")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// initialize config.
func initConfig(path string) *config.Config {
	if path != "" {
		return config.MustLoad(path)
	}

	baseDir, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to get current directory: %w", err))
	}

	return config.MustLoad(filepath.Join(baseDir, "./config.yml"))
}

// initialize logger.
func initLogger(conf *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
