package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's recording state",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(os.Stdout)

			var status struct {
				Recording  bool    `json:"recording"`
				MeetingID  string  `json:"meetingId"`
				Title      string  `json:"title"`
				Duration   float64 `json:"duration"`
				DeviceName string  `json:"deviceName"`
			}
			if err := newClient(deps.Config.HTTPPort).get("/status", &status); err != nil {
				return err
			}

			if !status.Recording {
				formatter.Info("Not recording")
				return nil
			}
			title := status.Title
			if title == "" {
				title = status.MeetingID
			}
			formatter.Info(fmt.Sprintf("Recording %q for %s on %s",
				title, secondsToDuration(status.Duration), status.DeviceName))
			return nil
		},
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
