package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriscow/livekit-translate-go/internal/config"
	_ "github.com/chriscow/livekit-translate-go/pkg/plugin/deepgram" // Import to register Deepgram plugin
	_ "github.com/chriscow/livekit-translate-go/pkg/plugin/fake"     // Import to register fake plugins
	_ "github.com/chriscow/livekit-translate-go/pkg/plugin/openai"   // Import to register OpenAI and Groq plugins
	"github.com/chriscow/livekit-translate-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "lk-translate",
	Short: "Real-time voice translation for LiveKit rooms",
	Long: `lk-translate joins LiveKit rooms, transcribes the speaker, streams a
translation for every finished sentence and relays it to subtitle viewers and
back into the room as synthesized speech.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
	},
}

func setupLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LK_LOG_LEVEL"))}

	var handler slog.Handler
	if os.Getenv("LK_LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		// Default to JSON
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the configuration named by the --config and --env-file
// flags.
func loadConfig(cmd *cobra.Command, opts ...config.LoaderOption) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	return config.Load(opts...)
}

// offline replaces the providers a command never calls, so it runs without
// their credentials.
func offline(keys ...string) []config.LoaderOption {
	opts := make([]config.LoaderOption, 0, len(keys))
	for _, key := range keys {
		opts = append(opts, config.WithOverride(key+".provider", "fake"))
	}
	return opts
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file (default ./.env when present)")

	// worker run
	workerRunCmd.Flags().StringSlice("room", nil, "Room to join (repeatable, default: every configured room prefix)")
	workerRunCmd.Flags().String("metrics-addr", "", "Serve expvar counters on this address at /debug/vars")
	workerRunCmd.Flags().Bool("dry-run", false, "Dry run mode - validate config and exit")

	// translate
	translateCmd.Flags().String("lang", "", "Target language code")
	translateCmd.Flags().String("provider", "", "Translation provider (default from config)")
	translateCmd.Flags().Duration("timeout", defaultTranslateTimeout, "Give up after this long")
	translateCmd.MarkFlagRequired("lang")

	// Build command tree
	workerCmd.AddCommand(workerRunCmd, workerHealthzCmd)
	roomsCmd.AddCommand(roomsResolveCmd)
	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(versionCmd, workerCmd, translateCmd, roomsCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
