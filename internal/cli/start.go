package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewStartCmd(deps *Dependencies) *cobra.Command {
	var meetingID string
	var title string
	var device string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a recording session on the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(os.Stdout)

			var resp struct {
				Started   bool   `json:"started"`
				MeetingID string `json:"meetingId"`
			}
			req := map[string]any{
				"meetingId":  meetingID,
				"title":      title,
				"deviceHint": device,
			}
			if err := newClient(deps.Config.HTTPPort).post("/start", req, &resp); err != nil {
				return err
			}

			formatter.RecordingStarted(resp.MeetingID, title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&meetingID, "meeting-id", "m", "", "Meeting identifier (generated if empty)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Meeting title")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Meeting audio device name substring")

	return cmd
}
