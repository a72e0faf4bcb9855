package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/archive"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent digest runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := archive.Open(cfg.State.ArchiveDB)
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer store.Close()

			reports, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("no runs recorded yet")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tBATCH\tOK\tSTARTED")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					r.RunID, r.Status, r.BatchCount, r.Succeeded,
					r.StartedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max runs to list")
	return cmd
}

func newShowCommand() *cobra.Command {
	var asHTML bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the archived digest of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := archive.Open(cfg.State.ArchiveDB)
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer store.Close()

			digest, err := store.GetDigest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asHTML {
				fmt.Println(digest.HTML)
				return nil
			}
			fmt.Printf("subject: %s\n\n%s\n", digest.Subject, digest.Report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asHTML, "html", false, "print the full HTML body")
	return cmd
}
