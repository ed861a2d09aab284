package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/cogcall/internal/control"
	"github.com/vietddude/cogcall/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	inFile  string
)

var rootCmd = &cobra.Command{
	Use:   "cogcall",
	Short: "Resilient client for Azure AI services",
	Long: `cogcall calls Azure AI Language, Translator, Vision and OpenAI with
retries, failure classification, usage accounting and cost control.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file; environment variables are used when it does not exist")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads configuration and sets up logging.
func loadConfig() *config.AppConfig {
	cfg, err := config.LoadOrEnv(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// withApp builds the application, runs fn and prints the usage summary.
// Pending call records are flushed before returning.
func withApp(fn func(ctx context.Context, app *control.App) error) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	app.Start(ctx)

	runErr := fn(ctx, app)

	printUsage(os.Stdout, app.Client)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	if runErr != nil {
		slog.Error("Command failed", "error", runErr)
		os.Exit(1)
	}
}

// readInput returns the text from --file, the arguments, or stdin in that order.
func readInput(args []string) (string, error) {
	if inFile != "" {
		data, err := os.ReadFile(inFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
