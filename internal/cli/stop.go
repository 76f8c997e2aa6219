package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewStopCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(os.Stdout)

			// Fetch duration before stopping; /stop doesn't report it.
			var status struct {
				Recording bool    `json:"recording"`
				Duration  float64 `json:"duration"`
			}
			c := newClient(deps.Config.HTTPPort)
			_ = c.get("/status", &status)

			var resp struct {
				Stopped   bool   `json:"stopped"`
				MeetingID string `json:"meetingId"`
				WavPath   string `json:"wavPath"`
			}
			if err := c.post("/stop", map[string]any{}, &resp); err != nil {
				return err
			}

			formatter.RecordingStopped(resp.MeetingID, secondsToDuration(status.Duration), resp.WavPath)
			return nil
		},
	}

	return cmd
}
