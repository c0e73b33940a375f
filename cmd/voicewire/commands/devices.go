package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/devices"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Device registry helpers",
}

var devicesExampleCmd = &cobra.Command{
	Use:   "example-config <path>",
	Short: "Write an example device registry file",
	Long: `Write a starting-point registry to the given path. The format is
chosen by extension: .yaml/.yml for YAML, anything else for JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if err := devices.WriteExampleConfig(path); err != nil {
			return err
		}
		fmt.Printf("wrote example config to %s\n", path)
		return nil
	},
}

func init() {
	devicesCmd.AddCommand(devicesExampleCmd)
	rootCmd.AddCommand(devicesCmd)
}
