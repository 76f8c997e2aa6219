package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/audio"
	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List input-capable audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(os.Stdout)

			registry, err := audio.NewRegistry()
			if err != nil {
				return err
			}
			defer registry.Close()

			devices, err := registry.List()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				formatter.Warning("No input devices found")
				return nil
			}

			defaultDev, _ := registry.SystemDefaultInput()

			formatter.DeviceListHeader()
			for _, d := range devices {
				isDefault := defaultDev != nil && d.UID == defaultDev.UID
				formatter.DeviceListItem(d.Name, isDefault)
			}
			return nil
		},
	}
}
