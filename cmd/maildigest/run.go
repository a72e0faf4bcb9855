package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/archive"
	"github.com/lanhoang/maildigest/internal/credential"
	"github.com/lanhoang/maildigest/internal/deliver"
	"github.com/lanhoang/maildigest/internal/mailbox"
	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/pipeline"
	"github.com/lanhoang/maildigest/internal/render"
	"github.com/lanhoang/maildigest/internal/state"
	"github.com/lanhoang/maildigest/internal/summarizer"
)

func newRunCommand() *cobra.Command {
	var (
		limit      int
		onlyUnread bool
		to         string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, summarize, and deliver one digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if limit > 0 {
				cfg.Digest.Limit = limit
				if cfg.Digest.Limit > 50 {
					cfg.Digest.Limit = 50
				}
			}
			if to != "" {
				cfg.Digest.To = to
			}
			if cfg.Digest.To == "" {
				cfg.Digest.To = cfg.Mailbox.Username
			}
			if cfg.Digest.To == "" {
				return fmt.Errorf("no destination address: set digest.to or --to")
			}

			coord, store, err := buildCoordinator(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, runErr := coord.Run(ctx, pipeline.RunOptions{
				Limit:      cfg.Digest.Limit,
				OnlyUnread: onlyUnread,
				To:         cfg.Digest.To,
			})

			printReport(report)

			switch report.Status {
			case model.StatusSent, model.StatusNoWork:
				return nil
			default:
				return runErr
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0,
		"max messages per run (overrides config)")
	cmd.Flags().BoolVarP(&onlyUnread, "unread", "u", false,
		"only consider unseen messages")
	cmd.Flags().StringVar(&to, "to", "",
		"digest destination address (overrides config)")

	return cmd
}

// buildCoordinator assembles the pipeline from configuration and
// stored credentials. The archive store is optional; a failure to open
// it disables run history but does not block the run.
func buildCoordinator(
	cfg *model.AppConfig,
) (*pipeline.Coordinator, *archive.Store, error) {
	imapPassword, err := credential.Get(credential.KeyIMAPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("mailbox password: %w", err)
	}
	smtpPassword, err := credential.Get(credential.KeySMTPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("smtp password: %w", err)
	}
	apiKey, err := credential.Get(credential.KeyLLMAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("model api key: %w", err)
	}

	mb := mailbox.NewIMAPMailbox(
		cfg.Mailbox.Host, cfg.Mailbox.Port,
		cfg.Mailbox.Username, imapPassword,
		cfg.Mailbox.Folder, cfg.Mailbox.TLS,
	)

	summ := summarizer.NewOpenAIClient(
		cfg.LLM.BaseURL, apiKey, cfg.LLM.Model, cfg.LLM.MaxTokens)

	renderer, err := render.NewHTMLRenderer(cfg.Digest.Subject)
	if err != nil {
		return nil, nil, err
	}

	delivery := deliver.NewSMTPDelivery(
		cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, smtpPassword)

	ledger := state.NewFileLedger(cfg.State.LedgerPath)

	store, err := archive.Open(cfg.State.ArchiveDB)
	if err != nil {
		slog.Warn("archive unavailable, run history disabled", "error", err)
		store = nil
	}

	scheduler := pipeline.NewScheduler(
		summ,
		cfg.Digest.MaxConcurrency,
		time.Duration(cfg.Digest.DeadlineSec)*time.Second,
	)
	scheduler.SetProgress(func(completed, total int) {
		fmt.Fprintf(os.Stderr, "\rsummarizing %d/%d", completed, total)
		if completed == total {
			fmt.Fprintln(os.Stderr)
		}
	})

	coord := pipeline.NewCoordinator(
		pipeline.NewIntake(mb, ledger),
		scheduler,
		pipeline.NewComposer(renderer),
		pipeline.NewDispatcher(delivery, slog.Default()),
		ledger,
		store,
		slog.Default(),
	)
	return coord, store, nil
}

func printReport(report *model.RunReport) {
	fmt.Printf("run %s finished: %s\n", report.RunID, report.Status)
	if report.BatchCount > 0 {
		fmt.Printf("  summarized %d/%d messages\n",
			report.Succeeded, report.BatchCount)
	}
	if report.Message != "" {
		fmt.Printf("  %s\n", report.Message)
	}
}
