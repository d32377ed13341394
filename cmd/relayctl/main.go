package main

import (
	"os"

	"github.com/eldtechnologies/sendmessage/cmd/relayctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
