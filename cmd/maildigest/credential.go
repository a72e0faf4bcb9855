package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lanhoang/maildigest/internal/credential"
)

var credentialKeys = []string{
	credential.KeyIMAPPassword,
	credential.KeySMTPPassword,
	credential.KeyLLMAPIKey,
}

func validCredentialKey(key string) bool {
	for _, k := range credentialKeys {
		if k == key {
			return true
		}
	}
	return false
}

func newCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored secrets",
		Long: "Store and remove the secrets maildigest needs: " +
			strings.Join(credentialKeys, ", ") + ".",
	}

	set := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret (prompted on stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			if !validCredentialKey(key) {
				return fmt.Errorf(
					"unknown key %q, expected one of: %s",
					key, strings.Join(credentialKeys, ", "))
			}

			fmt.Printf("value for %s: ", key)
			reader := bufio.NewReader(os.Stdin)
			value, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading value: %w", err)
			}
			value = strings.TrimRight(value, "\r\n")
			if value == "" {
				return fmt.Errorf("empty value")
			}

			if err := credential.Set(key, value); err != nil {
				return err
			}
			fmt.Printf("stored %s\n", key)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			if !validCredentialKey(key) {
				return fmt.Errorf(
					"unknown key %q, expected one of: %s",
					key, strings.Join(credentialKeys, ", "))
			}
			if err := credential.Delete(key); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", key)
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
