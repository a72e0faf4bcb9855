package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/credential"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and stored credentials",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			problems := 0
			check := func(ok bool, what string) {
				if ok {
					fmt.Printf("  ok    %s\n", what)
				} else {
					fmt.Printf("  MISSING %s\n", what)
					problems++
				}
			}

			fmt.Println("configuration:")
			check(cfg.Mailbox.Host != "", "mailbox host")
			check(cfg.Mailbox.Username != "", "mailbox username")
			check(cfg.SMTP.Host != "", "smtp host")
			check(cfg.Digest.To != "" || cfg.Mailbox.Username != "",
				"digest destination")

			fmt.Println("credentials:")
			for _, key := range []string{
				credential.KeyIMAPPassword,
				credential.KeySMTPPassword,
				credential.KeyLLMAPIKey,
			} {
				_, err := credential.Get(key)
				check(err == nil, key)
			}

			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			fmt.Println("everything looks good")
			return nil
		},
	}
}
