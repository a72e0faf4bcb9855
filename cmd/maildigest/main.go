package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/model"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "maildigest",
		Short: "Summarize new mail into a single digest email",
		Long: "maildigest fetches unprocessed messages from an IMAP mailbox,\n" +
			"summarizes each one with a language model, and delivers the\n" +
			"summaries as one rating-ordered digest email.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	root.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	root.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(),
		newWatchCommand(),
		newValidateCommand(),
		newRunsCommand(),
		newShowCommand(),
		newCredentialCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
