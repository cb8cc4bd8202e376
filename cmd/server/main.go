package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/app"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/auth"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/config"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/log"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/seed"
)

var (
	configPath string
	overrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:          "cartchat",
	Short:        "Real-time messaging and presence for social commerce",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users, products and carts from a YAML fixtures file",
	RunE:  runSeed,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for an existing user",
	RunE:  runToken,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path (default ./config.yaml or $CARTCHAT_CONFIG_DEFAULT_PATH)")
	flags.StringVar(&overrides.Log.Level, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.Storage.Driver, "storage-driver", "", "storage driver (sqlite, pebble)")
	flags.StringVar(&overrides.Storage.Path, "storage-path", "", "sqlite file or pebble directory")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&overrides.Server.Addr, "addr", "", "HTTP listen address")
		cmd.Flags().DurationVar(&overrides.Server.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
		cmd.Flags().DurationVar(&overrides.Server.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
		cmd.Flags().StringVar(&overrides.Delivery.Mode, "delivery-mode", "", "delivery confirmation mode (presence, timer, ack)")
	}

	seedCmd.Flags().StringP("file", "f", "", "fixtures file")
	_ = seedCmd.MarkFlagRequired("file")

	tokenCmd.Flags().StringP("user", "u", "", "user id")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, seedCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup resolves configuration in order: defaults, config file, env vars, flags.
func setup() (config.Config, *zerolog.Logger, error) {
	_ = godotenv.Load(".env")

	bootstrap := log.New("info")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.NewWithFormat(cfg.Log.Level, cfg.Log.Format)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Server.Addr).Msg("starting cartchat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	file, _ := cmd.Flags().GetString("file")

	fixtures, err := seed.Load(file)
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	res, err := seed.Apply(ctx, st, fixtures)
	if err != nil {
		return err
	}

	logger.Info().
		Int("users", res.Users).
		Int("products", res.Products).
		Int("carts", res.Carts).
		Str("file", file).
		Msg("fixtures applied")
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user")

	st, err := app.OpenStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	token, err := auth.NewService(st, app.JWTConfig(cfg.JWT)).IssueToken(cmd.Context(), userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
