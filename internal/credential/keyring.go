package credential

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "maildigest"

// Well-known credential keys and their environment variable fallbacks.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
	KeyLLMAPIKey    = "llm-api-key"
)

// envFallbacks maps credential keys to the environment variables
// consulted when the keyring has no entry.
var envFallbacks = map[string]string{
	KeyIMAPPassword: "MAILDIGEST_IMAP_PASSWORD",
	KeySMTPPassword: "MAILDIGEST_SMTP_PASSWORD",
	KeyLLMAPIKey:    "MAILDIGEST_LLM_API_KEY",
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/maildigest/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("maildigest-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key, preferring the system
// keyring and falling back to the matching environment variable.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err == nil {
		item, getErr := ring.Get(key)
		if getErr == nil {
			return string(item.Data), nil
		}
	}

	if env, ok := envFallbacks[key]; ok {
		if val := os.Getenv(env); val != "" {
			return val, nil
		}
	}

	return "", fmt.Errorf("credential %q not found in keyring or environment", key)
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
