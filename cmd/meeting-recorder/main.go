package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/alexander-vyh/meeting-recorder/config"
	"github.com/alexander-vyh/meeting-recorder/internal/cli"
	"github.com/alexander-vyh/meeting-recorder/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{Config: cfg}
	return cli.NewRootCmd(deps).Execute()
}
