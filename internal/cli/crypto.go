package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/stackdeploy/internal/core/crypto"
)

// newEncryptCommand creates the "encrypt" subcommand sealing a secret value
// for use in a deployment document.
func newEncryptCommand() *cobra.Command {
	var (
		key      string
		generate bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret value for use in a deployment document",
		Long:  "Encrypt a secret value with NaCl secretbox. The value comes from the argument or stdin. The same key must later be provided through the variable named in the secret's key field.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && generate {
				return errors.New("--key and --generate-key are mutually exclusive")
			}
			if key == "" && !generate {
				return errors.New("either --key or --generate-key is required")
			}
			if generate {
				generated, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				key = generated
				fmt.Fprintf(cmd.OutOrStdout(), "key: %s\n", key)
			}

			plaintext, err := readValue(cmd, args)
			if err != nil {
				return err
			}
			sealed, err := crypto.SealToBase64(plaintext, crypto.KeyFromString(key))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Encryption key or passphrase")
	cmd.Flags().BoolVar(&generate, "generate-key", false, "Generate a fresh random key and print it first")

	return cmd
}

// newDecryptCommand creates the "decrypt" subcommand, the inverse of
// encrypt.
func newDecryptCommand() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "decrypt [value]",
		Short: "Decrypt a value sealed with encrypt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("--key is required")
			}

			sealed, err := readValue(cmd, args)
			if err != nil {
				return err
			}
			plaintext, err := crypto.OpenFromBase64(strings.TrimSpace(string(sealed)), crypto.KeyFromString(key))
			if err != nil {
				return fmt.Errorf("could not decrypt value: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(plaintext)
			return err
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Encryption key or passphrase")

	return cmd
}

// readValue takes the value from the single argument or, without one, from
// stdin. A single trailing newline from piped input is stripped.
func readValue(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(string(data), "\n")), nil
}
