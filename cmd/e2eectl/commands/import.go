package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <user-id> <backup-file>",
		Short: "Import a private key from a JSON backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := keystore.ImportKey(args[0], data); err != nil {
				return err
			}
			fmt.Println("Key imported.")
			return nil
		},
	}
}
