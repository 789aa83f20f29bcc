package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quillnotes/quill/internal/util"
	"github.com/quillnotes/quill/keys"
)

var (
	keyOut   string
	keyForce bool
)

// keyFile is the on-disk identity: the public key in the clear and the
// secret key encrypted under the user's password.
type keyFile struct {
	PublicKey          string    `json:"public_key"`
	EncryptedSecretKey string    `json:"encrypted_secret_key"`
	CreatedAt          time.Time `json:"created_at"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an encryption key pair",
	Long: `Generates a new X25519 key pair and writes it to a key file. The secret
key is encrypted with a password you choose; the password is never stored
and a forgotten password cannot be recovered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keyForce {
			if _, err := os.Stat(keyOut); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", keyOut)
			}
		}

		password, err := promptPassword()
		if err != nil {
			return err
		}

		pair, err := keys.GenerateUserKeys()
		if err != nil {
			return fmt.Errorf("failed to generate key pair: %w", err)
		}
		defer keys.ClearKeyPair(&pair)

		blob, err := keys.EncryptSecretKey(pair.Secret, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret key: %w", err)
		}

		data, err := json.MarshalIndent(keyFile{
			PublicKey:          util.B64Encode(pair.Public[:]),
			EncryptedSecretKey: blob,
			CreatedAt:          time.Now().UTC(),
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(keyOut, append(data, '\n'), 0o600); err != nil {
			return fmt.Errorf("failed to write key file: %w", err)
		}

		fmt.Printf("Key pair written to %s\n", keyOut)
		fmt.Printf("Public key: %s\n", util.B64Encode(pair.Public[:]))
		return nil
	},
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("keygen needs an interactive terminal to read the password")
	}

	fmt.Print("Enter password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(first), nil
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keyOut, "out", "o", "quill-keys.json", "Path for the generated key file")
	keygenCmd.Flags().BoolVar(&keyForce, "force", false, "Overwrite an existing key file")
}
