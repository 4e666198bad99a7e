package main

import (
	"os"

	"e2ee-channels/cmd/e2eectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
