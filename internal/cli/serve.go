package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alexander-vyh/meeting-recorder/internal/app"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder daemon",
		Long:  "Start the background daemon: binds the control port, watches audio devices,\nand waits for start/stop requests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			application, err := app.New(deps.Config)
			if err != nil {
				return err
			}
			defer application.Close()

			// Bind before anything else so a stale daemon on the port
			// surfaces as an immediate non-zero exit.
			ln, err := application.Server.Listen()
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- application.Server.Serve(ln) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logrus.WithField("signal", sig.String()).Info("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Server.Shutdown(ctx)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}
