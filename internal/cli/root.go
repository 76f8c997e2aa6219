package cli

import (
	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/config"
	"github.com/alexander-vyh/meeting-recorder/internal/version"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meeting-recorder",
		Short: "Record meetings with live transcription and talk-time coaching",
		Long: "A background daemon that captures meeting audio and the local microphone,\n" +
			"streams transcription through an external speech-to-text process, attributes\n" +
			"speech to you vs. others, and serves live metrics over HTTP.",
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewStartCmd(deps))
	rootCmd.AddCommand(NewStopCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewSessionsCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
