package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"e2ee-channels/pkg/cryptoengine"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <user-id>",
		Short: "Print the fingerprint of a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			priv, err := keystore.PrivateKey(args[0])
			if err != nil {
				return err
			}
			pub, err := cryptoengine.PublicKeyFromPrivate(priv)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", cryptoengine.Fingerprint(pub))
			return nil
		},
	}
}
