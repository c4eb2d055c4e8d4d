package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/reviewsense/internal/profile"
	"github.com/hrygo/reviewsense/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "reviewsense",
	Short:         `Summarize product reviews with an LLM, caching each summary until it expires.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Systemd units pass configuration through EnvironmentFile instead.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return setupLogger(viper.GetString("log-level"), viper.GetString("log-format"))
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("single-flight", true)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of operation, can be "prod" or "dev" or "demo"`)
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver (sqlite, postgres)")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.String("redis-addr", "", "keep summaries in Redis at this address instead of the database")
	flags.String("prompt-dir", "", "directory holding prompts/summary.yaml, overrides the built-in prompt")
	flags.Bool("single-flight", true, "share one generation between concurrent misses for the same product")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	for _, name := range []string{
		"mode", "data", "driver", "dsn", "redis-addr", "prompt-dir",
		"single-flight", "metrics-addr", "log-level", "log-format",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("reviewsense")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newMigrateCmd(),
		newReviewCmd(),
		newSummarizeCmd(),
		newSummaryCmd(),
		newRefreshCmd(),
		newGenerateCmd(),
		newVersionCmd(),
	)
}

// loadProfile builds the instance profile from flags, then environment.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:         viper.GetString("mode"),
		Data:         viper.GetString("data"),
		Driver:       viper.GetString("driver"),
		DSN:          viper.GetString("dsn"),
		RedisAddr:    viper.GetString("redis-addr"),
		PromptDir:    viper.GetString("prompt-dir"),
		SingleFlight: viper.GetBool("single-flight"),
		MetricsAddr:  viper.GetString("metrics-addr"),
		Version:      version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return errors.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError prints a hint for common database connection failures.
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL is not reachable.")
		fmt.Fprintln(os.Stderr, "  Start it, or use SQLite: REVIEWSENSE_DRIVER=sqlite")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL SSL configuration mismatch. Add ?sslmode=disable to the DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL authentication failed. Check the credentials in the DSN or .env file.")
	case strings.Contains(errMsg, "database") && strings.Contains(errMsg, "does not exist"):
		fmt.Fprintln(os.Stderr, "  Database does not exist. Create it first.")
	case strings.Contains(errMsg, "unable to access data folder"):
		fmt.Fprintf(os.Stderr, "  Data directory %s is not accessible.\n", profile.Data)
	default:
		fmt.Fprintln(os.Stderr, "  Error:", errMsg)
	}
	fmt.Fprintf(os.Stderr, "  Driver: %s\n", profile.Driver)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
