package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/devices"
	"github.com/voicewire/voicewire/pkg/server"
	"github.com/voicewire/voicewire/pkg/session"
)

var (
	autoconnectDevicesPath string
	autoconnectListen      string
)

var autoconnectCmd = &cobra.Command{
	Use:   "autoconnect",
	Short: "Dial configured devices and run sessions over them",
	Long: `Connect outbound to every enabled device in the registry and keep
each connection supervised independently. Also serves the operational
surface:

  GET  /v1/health                     service readiness + device counts
  GET  /v1/devices                    per-device connection status
  POST /v1/devices/{name}/reconnect   force an immediate redial`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := devices.LoadConfig(autoconnectDevicesPath)
		if err != nil {
			return err
		}
		if len(cfg.Enabled()) == 0 {
			return fmt.Errorf("no enabled devices in %s", autoconnectDevicesPath)
		}

		services := buildServices()
		managerOpts := []devices.Option{devices.WithLogger(slog.Default())}
		if recordingsDir != "" {
			managerOpts = append(managerOpts,
				devices.WithSessionOptions(session.WithRecordingsDir(recordingsDir)))
		}
		manager := devices.NewManager(services, cfg, managerOpts...)
		manager.Start()
		defer manager.Stop()

		srv := server.New(services,
			server.WithLogger(slog.Default()),
			server.WithDeviceManager(manager),
		)
		return runHTTP(cmd.Context(), autoconnectListen, srv.Handler())
	},
}

func init() {
	autoconnectCmd.Flags().StringVar(&autoconnectDevicesPath, "devices", "devices.yaml", "device registry file (YAML or JSON)")
	autoconnectCmd.Flags().StringVar(&autoconnectListen, "listen", ":8089", "listen address for the operational surface")
	addServiceFlags(autoconnectCmd)
	rootCmd.AddCommand(autoconnectCmd)
}
