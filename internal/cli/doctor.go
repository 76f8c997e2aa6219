package cli

import (
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)
			ok := true

			if _, err := exec.LookPath(deps.Config.PythonBin); err != nil {
				f.SetupCheck("Python", false, deps.Config.PythonBin+" not found on PATH")
				ok = false
			} else {
				f.SetupCheck("Python", true, deps.Config.PythonBin)
			}

			if _, err := os.Stat(deps.Config.TranscriberScript); err != nil {
				f.SetupCheck("Transcriber script", false, deps.Config.TranscriberScript+" not found")
				ok = false
			} else {
				f.SetupCheck("Transcriber script", true, deps.Config.TranscriberScript)
			}

			addr := fmt.Sprintf("127.0.0.1:%d", deps.Config.HTTPPort)
			if ln, err := net.Listen("tcp", addr); err != nil {
				f.SetupCheck("Control port", true, fmt.Sprintf("%d in use (daemon appears to be running)", deps.Config.HTTPPort))
			} else {
				ln.Close()
				f.SetupCheck("Control port", true, fmt.Sprintf("%d free", deps.Config.HTTPPort))
			}

			f.SetupCheck("Recordings directory", true, deps.Config.RecordingsDir)
			f.SetupCheck("Transcripts directory", true, deps.Config.TranscriptsDir)

			if deps.Config.VocabularyPath != "" {
				if _, err := os.Stat(deps.Config.VocabularyPath); err != nil {
					f.SetupCheck("Vocabulary", false, deps.Config.VocabularyPath+" not found")
				} else {
					f.SetupCheck("Vocabulary", true, deps.Config.VocabularyPath)
				}
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
