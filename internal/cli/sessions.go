package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewSessionsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List completed recording sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(os.Stdout)

			var resp struct {
				Sessions []struct {
					MeetingID    string    `json:"meetingId"`
					Title        string    `json:"title"`
					StartTime    time.Time `json:"startTime"`
					SegmentCount int       `json:"segmentCount"`
				} `json:"sessions"`
			}
			if err := newClient(deps.Config.HTTPPort).get("/sessions", &resp); err != nil {
				return err
			}

			if len(resp.Sessions) == 0 {
				formatter.Info("No sessions recorded yet")
				return nil
			}

			formatter.SessionListHeader()
			for _, s := range resp.Sessions {
				title := s.Title
				if title == "" {
					title = s.MeetingID
				}
				formatter.SessionListItem(title, s.StartTime, s.SegmentCount)
			}
			return nil
		},
	}
}
