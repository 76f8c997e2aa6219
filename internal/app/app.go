package app

import (
	"github.com/alexander-vyh/meeting-recorder/config"
	"github.com/alexander-vyh/meeting-recorder/internal/daemon"
	"github.com/alexander-vyh/meeting-recorder/internal/server"
)

// App wires the daemon and its control server together. Constructed by
// the serve command; client-side commands talk to a running daemon over
// HTTP instead.
type App struct {
	Daemon *daemon.Daemon
	Server *server.Server
}

func New(cfg *config.Config) (*App, error) {
	d, err := daemon.New(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		Daemon: d,
		Server: server.New(d, cfg.HTTPPort),
	}, nil
}

// Close releases the daemon's audio runtime and index.
func (a *App) Close() error {
	return a.Daemon.Close()
}
