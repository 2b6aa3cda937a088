package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skylift-dev/skylift/pkg/storage"
)

const maxCredentialSize = 1 << 20 // 1MB limit for all credential inputs

// NewCredentialCommand creates the credential management command
func NewCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage provider credentials",
		Long: `Manage provider credentials securely in the system keyring.
Credentials are stored in your system's native credential store (Keychain on
macOS, Credential Manager on Windows, Secret Service on Linux) and never in
plain text files.

Environment variables with the same name always take precedence over keyring
entries, so CI pipelines can inject credentials without touching the keyring.`,
	}

	cmd.AddCommand(newCredentialSetCommand())
	cmd.AddCommand(newCredentialListCommand())
	cmd.AddCommand(newCredentialDeleteCommand())

	return cmd
}

// newCredentialSetCommand creates the credential set subcommand
func newCredentialSetCommand() *cobra.Command {
	var useStdin bool

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a credential in the system keyring",
		Long: `Store a credential under the given key. Keys are the environment variable
names the providers read, for example AWS_ACCESS_KEY_ID or VERCEL_TOKEN.

Examples:
  # Store a credential with an interactive prompt (recommended for local use)
  skylift credential set VERCEL_TOKEN

  # Store a credential from stdin (recommended for automation)
  printf '%s' "$TOKEN" | skylift credential set VERCEL_TOKEN --stdin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			value, err := readCredentialValue(cmd, useStdin)
			if err != nil {
				return err
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("credential value must not be empty")
			}

			store := storage.NewKeyringCredentialStore()
			if err := store.Set(key, value); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}

			cmd.Printf("Credential %q stored in the system keyring.\n", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useStdin, "stdin", false, "Read the credential value from stdin")

	return cmd
}

// newCredentialListCommand creates the credential list subcommand
func newCredentialListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credential keys",
		Long:  `List the keys of credentials stored in the system keyring. Values are never displayed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storage.NewKeyringCredentialStore()
			keys, err := store.List()
			if err != nil {
				return fmt.Errorf("failed to list credentials: %w", err)
			}
			if len(keys) == 0 {
				cmd.Println("No credentials stored.")
				return nil
			}
			for _, key := range keys {
				cmd.Println(key)
			}
			return nil
		},
	}
}

// newCredentialDeleteCommand creates the credential delete subcommand
func newCredentialDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a credential from the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storage.NewKeyringCredentialStore()
			if err := store.Delete(args[0]); err != nil {
				return fmt.Errorf("failed to delete credential: %w", err)
			}
			cmd.Printf("Credential %q removed.\n", args[0])
			return nil
		},
	}
}

// readCredentialValue reads a credential either from stdin or an interactive
// terminal prompt that does not echo.
func readCredentialValue(cmd *cobra.Command, useStdin bool) (string, error) {
	if useStdin {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxCredentialSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read credential from stdin: %w", err)
		}
		if len(data) > maxCredentialSize {
			return "", fmt.Errorf("credential exceeds maximum size of %d bytes", maxCredentialSize)
		}
		return string(bytes.TrimRight(data, "\r\n")), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; use --stdin to pipe the value")
	}

	cmd.Print("Value: ")
	value, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	if len(value) > maxCredentialSize {
		return "", fmt.Errorf("credential exceeds maximum size of %d bytes", maxCredentialSize)
	}
	return string(value), nil
}
