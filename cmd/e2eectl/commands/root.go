package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"e2ee-channels/pkg/cryptoengine"
)

var (
	home       string
	passphrase string
	keystore   *cryptoengine.Keystore
)

func Execute() error {
	root := &cobra.Command{
		Use:   "e2eectl",
		Short: "Local key custody for end-to-end encrypted channels",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".e2eectl")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			keystore = cryptoengine.NewKeystore(home, passphrase)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "keystore dir (default ~/.e2eectl)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect stored keys")

	root.AddCommand(keygenCmd(), fingerprintCmd(), exportCmd(), importCmd())
	return root.Execute()
}

func requirePassphrase() error {
	if passphrase == "" {
		return errPassphraseRequired
	}
	return nil
}
