package audio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// ErrDeviceUnavailable means the requested device could not be found or
// opened for capture.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// SetupError wraps a low-level portaudio failure while configuring a
// capture session.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("audio setup: %s: %v", e.Op, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }

// Device describes one input-capable audio device.
type Device struct {
	ID   int
	UID  string
	Name string

	info *portaudio.DeviceInfo
}

// Registry enumerates input devices through portaudio. Enumeration is
// performed fresh on every call so results are current after a hot-plug.
type Registry struct {
	log *logrus.Entry

	mu       sync.Mutex
	watchers []func()
	stopPoll chan struct{}
}

// NewRegistry initializes the portaudio runtime. Callers must Close the
// registry to release it.
func NewRegistry() (*Registry, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &SetupError{Op: "initialize", Err: err}
	}
	return &Registry{log: logrus.WithField("component", "devices")}, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	if r.stopPoll != nil {
		close(r.stopPoll)
		r.stopPoll = nil
	}
	r.mu.Unlock()
	return portaudio.Terminate()
}

// List returns all input-capable devices. Devices without input channels
// are filtered out entirely.
func (r *Registry) List() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, &SetupError{Op: "enumerate", Err: err}
	}

	var out []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			ID:   i,
			UID:  deviceUID(info),
			Name: info.Name,
			info: info,
		})
	}
	return out, nil
}

// FindByName returns the first input device whose name contains substr,
// case-insensitively.
func (r *Registry) FindByName(substr string) (*Device, error) {
	devices, err := r.List()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substr)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), needle) {
			return &devices[i], nil
		}
	}
	return nil, nil
}

// SystemDefaultInput returns the platform default input device, or nil
// if no input device exists.
func (r *Registry) SystemDefaultInput() (*Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, nil
	}
	return &Device{ID: info.Index, UID: deviceUID(info), Name: info.Name, info: info}, nil
}

// Watch invokes cb from a background goroutine whenever the set of input
// devices changes. portaudio exposes no hot-plug notification, so the
// registry polls the topology and diffs it.
func (r *Registry) Watch(interval time.Duration, cb func()) {
	r.mu.Lock()
	r.watchers = append(r.watchers, cb)
	if r.stopPoll != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.stopPoll = stop
	r.mu.Unlock()

	go r.poll(interval, stop)
}

func (r *Registry) poll(interval time.Duration, stop chan struct{}) {
	last := r.topologyKey()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			key := r.topologyKey()
			if key == last {
				continue
			}
			last = key
			r.log.Info("audio device topology changed")
			r.mu.Lock()
			watchers := append([]func(){}, r.watchers...)
			r.mu.Unlock()
			for _, w := range watchers {
				w()
			}
		}
	}
}

func (r *Registry) topologyKey() string {
	devices, err := r.List()
	if err != nil {
		return "error"
	}
	uids := make([]string, 0, len(devices))
	for _, d := range devices {
		uids = append(uids, d.UID)
	}
	sort.Strings(uids)
	return strings.Join(uids, "\n")
}

func deviceUID(info *portaudio.DeviceInfo) string {
	host := "unknown"
	if info.HostApi != nil {
		host = info.HostApi.Name
	}
	return host + ":" + info.Name
}
