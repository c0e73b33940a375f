package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/devices"
)

var statusServer string

var (
	statusLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f"))
	statusBad   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
)

type healthStatus struct {
	OK       bool              `json:"ok"`
	Services map[string]string `json:"services"`
	Devices  *devices.Counts   `json:"devices"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health and device status of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 15 * time.Second}

		var health healthStatus
		if err := getJSON(client, statusServer+"/v1/health", &health); err != nil {
			return err
		}

		fmt.Println(statusLabel.Render("Services"))
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		names := make([]string, 0, len(health.Services))
		for name := range health.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			state := health.Services[name]
			rendered := statusOK.Render(state)
			if state != "ok" {
				rendered = statusBad.Render(state)
			}
			fmt.Fprintf(w, "  %s\t%s\n", name, rendered)
		}
		w.Flush()

		if health.Devices == nil {
			return nil
		}

		var deviceStatus map[string]devices.Status
		if err := getJSON(client, statusServer+"/v1/devices", &deviceStatus); err != nil {
			return err
		}

		fmt.Println(statusLabel.Render("Devices"))
		w = tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  NAME\tSTATE\tSINCE\tLAST ERROR\n")
		names = names[:0]
		for name := range deviceStatus {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := deviceStatus[name]
			state := statusBad.Render("disconnected")
			if st.Connected {
				state = statusOK.Render("connected")
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				name, state, st.Since.Time().Format(time.RFC3339), st.LastError)
		}
		w.Flush()
		return nil
	},
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("status: %s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8089", "server base URL")
	rootCmd.AddCommand(statusCmd)
}
