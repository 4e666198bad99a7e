package commands

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"e2ee-channels/pkg/cryptoengine"
)

var errPassphraseRequired = errors.New("passphrase required (-p)")

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <user-id>",
		Short: "Generate an RSA-4096 key pair and store the private key securely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			userID := args[0]
			if keystore.HasKey(userID) {
				return fmt.Errorf("a key already exists for %s; delete it first to regenerate", userID)
			}
			pair, err := cryptoengine.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := keystore.StorePrivateKey(userID, pair.PrivateKey); err != nil {
				return err
			}
			fmt.Printf("Key pair created (%s).\nFingerprint: %s\nPublic key:\n%s\n",
				pair.Algorithm, pair.Fingerprint,
				base64.StdEncoding.EncodeToString(pair.PublicKey))
			return nil
		},
	}
}
