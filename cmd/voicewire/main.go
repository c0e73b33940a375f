// Package main is the entry point for the voicewire CLI.
//
// Usage:
//
//	voicewire [flags] <command> [args]
//
// Commands:
//
//	serve       - Run the orchestrator for inbound client connections
//	autoconnect - Dial configured devices and run sessions over them
//	devices     - Device registry helpers (example-config)
//	status      - Show health and device status of a running server
package main

import (
	"fmt"
	"os"

	"github.com/voicewire/voicewire/cmd/voicewire/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
