package cmd

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/jsphweid/smartpiano/challenge"
	"github.com/jsphweid/smartpiano/config"
	"github.com/jsphweid/smartpiano/constants"
	"github.com/jsphweid/smartpiano/engine"
	"github.com/jsphweid/smartpiano/midi"
	"github.com/jsphweid/smartpiano/midi/rtmidi"
	"github.com/jsphweid/smartpiano/status"
	"github.com/jsphweid/smartpiano/transport"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("socket", constants.DefaultSocketPath, "unix socket clients connect to")
	f.Duration("quiet-window", constants.DefaultQuietWindow, "longest gap between notes of one chord")
	f.Int("max-challenges", constants.DefaultMaxChallenges, "challenges per game")
	f.String("log-level", constants.DefaultLogLevel, "debug, info, warn or error")
	f.String("log-format", constants.DefaultLogFormat, "text or json")
	f.String("device", "", "midi input to use, matched loosely by name")
	f.Bool("virtual", false, "open a virtual midi input instead of a device")
	f.String("port-name", constants.DefaultPortName, "name of the virtual midi input")
	f.String("status-addr", "", "serve GET /status on this address")
	f.Int64("seed", 0, "seed for challenges, 0 uses the clock")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the ear-training engine",
	Long: `Listens on a unix socket for one client at a time and runs the games it
configures against the selected midi input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	opener := rtmidi.NewOpener(rtmidi.Options{
		Device:   cfg.Midi.Device,
		Virtual:  cfg.Midi.Virtual,
		PortName: cfg.Midi.PortName,
	}, logger.With("component", "midi"))
	capture := midi.NewCapture(opener, cfg.QuietWindow, logger.With("component", "midi"))
	defer capture.Close()

	// a missing keyboard is only a warning; the engine retries on every config
	if err := capture.Initialize(); err != nil {
		logger.Warn("midi input not ready", "error", err)
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	eng := engine.New(transport.New(logger.With("component", "transport")), capture, engine.Options{
		Endpoint:      cfg.Socket,
		MaxChallenges: cfg.MaxChallenges,
		Challenges:    challenge.NewGenerator(rng, logger.With("component", "challenge")),
		Logger:        logger,
	})

	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, eng, logger.With("component", "status"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	return eng.Run(ctx)
}
