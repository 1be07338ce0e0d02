// Package rtmidi opens hardware and virtual MIDI inputs through the rtmidi
// driver. It needs cgo, so it is kept apart from the capture logic.
package rtmidi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	smidi "github.com/jsphweid/smartpiano/midi"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var ErrNoDevice = errors.New("no usable midi input")

// ExcludedPatterns are system ports that are never picked automatically.
var ExcludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

// minimum Jaro-Winkler similarity for a device hint to count as a match
const matchThreshold = 0.7

type Options struct {
	// Device is a name hint; empty picks the first usable input.
	Device string
	// Virtual opens a new input port named PortName instead of a device.
	Virtual  bool
	PortName string
}

type input struct {
	drv    *rtmididrv.Driver
	in     drivers.In
	logger *slog.Logger
}

func (i *input) String() string {
	return i.in.String()
}

func (i *input) Listen(fn func(msg midi.Message, timestampms int32)) (func(), error) {
	return midi.ListenTo(i.in, fn, midi.HandleError(func(err error) {
		i.logger.Warn("midi listener error", "device", i.in.String(), "error", err)
	}))
}

func (i *input) Close() error {
	return errors.Join(i.in.Close(), i.drv.Close())
}

// NewOpener returns an Opener that starts a fresh driver on every call, so
// devices plugged in after startup are found on the next attempt.
func NewOpener(opts Options, logger *slog.Logger) smidi.Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return func() (smidi.Input, error) {
		drv, err := rtmididrv.New()
		if err != nil {
			return nil, fmt.Errorf("rtmididrv: %w", err)
		}

		in, err := open(drv, opts, logger)
		if err != nil {
			drv.Close()
			return nil, err
		}
		return &input{drv: drv, in: in, logger: logger}, nil
	}
}

func open(drv *rtmididrv.Driver, opts Options, logger *slog.Logger) (drivers.In, error) {
	if opts.Virtual {
		in, err := drv.OpenVirtualIn(opts.PortName)
		if err != nil {
			return nil, fmt.Errorf("open virtual input %q: %w", opts.PortName, err)
		}
		logger.Info("opened virtual midi input", "port", opts.PortName)
		return in, nil
	}

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}

	name, err := SelectDevice(names, opts.Device)
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if in.String() != name {
			continue
		}
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		logger.Info("opened midi input", "device", name)
		return in, nil
	}
	return nil, fmt.Errorf("input %q not found", name)
}

func Excluded(name string) bool {
	for _, pat := range ExcludedPatterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

// SelectDevice picks the input to open. Without a hint it is the first
// usable one; with a hint it is the usable name that contains the hint or,
// failing that, the closest one by Jaro-Winkler similarity.
func SelectDevice(names []string, hint string) (string, error) {
	var usable []string
	for _, name := range names {
		if !Excluded(name) {
			usable = append(usable, name)
		}
	}
	if len(usable) == 0 {
		return "", ErrNoDevice
	}
	if hint == "" {
		return usable[0], nil
	}

	for _, name := range usable {
		if containsCI(name, hint) {
			return name, nil
		}
	}

	var best string
	var highestScore float64
	for _, name := range usable {
		score := strutil.Similarity(strings.ToLower(hint), strings.ToLower(name), metrics.NewJaroWinkler())
		if score > highestScore && score >= matchThreshold {
			highestScore = score
			best = name
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: nothing like %q among %s", ErrNoDevice, hint, strings.Join(usable, ", "))
	}
	return best, nil
}

type Device struct {
	Number   int
	Name     string
	Excluded bool
}

// ListDevices reports every input the driver can see.
func ListDevices() ([]Device, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	devices := make([]Device, len(ins))
	for i, in := range ins {
		devices[i] = Device{Number: in.Number(), Name: in.String(), Excluded: Excluded(in.String())}
	}
	return devices, nil
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
