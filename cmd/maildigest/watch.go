package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/pipeline"
	"github.com/lanhoang/maildigest/internal/schedule"
)

func newWatchCommand() *cobra.Command {
	var (
		interval   time.Duration
		onlyUnread bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run digests on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Digest.To == "" {
				cfg.Digest.To = cfg.Mailbox.Username
			}
			if cfg.Digest.To == "" {
				return fmt.Errorf("no destination address: set digest.to")
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

			poller := schedule.New(coord, pipeline.RunOptions{
				Limit:      cfg.Digest.Limit,
				OnlyUnread: onlyUnread,
				To:         cfg.Digest.To,
			}, interval)
			poller.Start(ctx)
			defer poller.Stop()

			fmt.Printf("watching mailbox, digest every %s (ctrl-c to stop)\n", interval)

			for {
				select {
				case report := <-poller.Reports():
					printReport(report)
					if st := poller.Status(); st.State == schedule.StateStopped {
						if st.Err != nil {
							return st.Err
						}
						return nil
					}
				case <-ctx.Done():
					fmt.Println("\nstopping")
					return nil
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Hour,
		"time between digest runs")
	cmd.Flags().BoolVarP(&onlyUnread, "unread", "u", false,
		"only consider unseen messages")

	return cmd
}
