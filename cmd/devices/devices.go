package devices

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/withu/internal/audiocore/sources/malgo"
)

// Command creates the devices command listing capture devices.
func Command() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgo.EnumerateDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}

			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found")
				return nil
			}
			fmt.Fprintln(out, "Available capture devices:")
			for _, d := range devices {
				marker := ""
				if d.IsDefault {
					marker = " [default]"
				}
				fmt.Fprintf(out, "  %d: %s (ID: %s)%s\n", d.Index, d.Name, d.ID, marker)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")
	return cmd
}
