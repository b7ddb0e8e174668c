// Command fibrild runs the FIBRIL voice-allocation engine: it listens
// for inbound OSC control messages, reallocates voices on a fixed
// tick, and streams minimal-delta voice updates back to a controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"fibril/discovery"
	"fibril/engine"
	"fibril/osc"
)

/*------------------------------------------------------------------
 *
 * Name:	main
 *
 * Purpose:	Parse flags, load config, and run the engine until a
 *		termination signal arrives.
 *
 *------------------------------------------------------------------*/

func main() {
	configFile := pflag.StringP("config-file", "c", "", "YAML configuration file.")
	listenPort := pflag.IntP("listen-port", "l", 0, "UDP port for inbound OSC (overrides config).")
	sendPort := pflag.IntP("send-port", "s", 0, "UDP port for outbound OSC (overrides config).")
	sendHost := pflag.StringP("send-host", "H", "", "Host/IP for outbound OSC (overrides config).")
	logLevel := pflag.StringP("log-level", "v", "", "Log level: debug, info, warn, error (overrides config).")
	seed := pflag.Uint64P("seed", "S", 0, "PRNG seed (0 selects the config/default seed).")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fibrild - FIBRIL MIDI voice-allocation engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := engine.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fibrild: %v\n", err)
		os.Exit(1)
	}

	if *listenPort != 0 {
		cfg.ListenPort = *listenPort
	}

	if *sendPort != 0 {
		cfg.SendPort = *sendPort
	}

	if *sendHost != "" {
		cfg.SendHost = *sendHost
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *seed != 0 {
		cfg.Seed = *seed
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fibrild: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ //nolint:exhaustruct
		ReportTimestamp: true,
	})
	logger.SetLevel(parseLevel(cfg.LogLevel))

	elog := engine.NewCharmLogger(logger)

	if err := run(cfg, elog, logger); err != nil {
		logger.Errorf("fibrild: %v", err)
		os.Exit(1)
	}
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func run(cfg engine.Config, elog *engine.CharmLogger, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)

	go func() {
		sig := <-sigCh
		logger.Infof("fibrild: received %v, shutting down", sig)
		cancel()
	}()

	state := engine.NewSystemState(cfg.Seed)
	ingest := engine.NewIngest(state, elog)
	emitter := engine.NewEmitter()

	outConn, err := net.Dial("udp", fmt.Sprintf("%s:%d", cfg.SendHost, cfg.SendPort))
	if err != nil {
		return fmt.Errorf("fibrild: dialing outbound OSC socket: %w", err)
	}
	defer outConn.Close()

	onChange := func(voiceChanges []engine.VoiceChange, activeCount int, countChanged bool) {
		messages := osc.VoiceChangeMessages(voiceChanges, activeCount, countChanged)
		for _, m := range messages {
			if _, err := outConn.Write(osc.Encode(m)); err != nil {
				logger.Warnf("fibrild: sending %s: %v", m.Address, err)
			}
		}
	}

	sched := engine.NewScheduler(ingest, emitter, elog, time.Duration(cfg.TickMS)*time.Millisecond, onChange)

	if cfg.DebugSnapshotPath != "" {
		snap, err := engine.NewSnapshotWriter(cfg.DebugSnapshotPath)
		if err != nil {
			logger.Warnf("fibrild: debug snapshot disabled: %v", err)
		} else {
			defer snap.Close()
			sched.SetSnapshotWriter(snap)
		}
	}

	if cfg.DNSSDName != "" {
		if err := discovery.AnnounceOSC(ctx, cfg.DNSSDName, cfg.ListenPort, logger); err != nil {
			logger.Warnf("fibrild: DNS-SD announce failed: %v", err)
		}
	}

	if cfg.GPIOChip != "" && cfg.GPIOSustainLine >= 0 {
		line, err := discovery.WatchSustainPedal(cfg.GPIOChip, cfg.GPIOSustainLine, cfg.GPIOSustainActive, func(down bool) {
			value := 0
			if down {
				value = 1
			}

			ingest.Apply(engine.Event{Kind: engine.EventSustain, Value: value})
		})
		if err != nil {
			logger.Warnf("fibrild: GPIO sustain pedal unavailable: %v", err)
		} else {
			defer line.Close()
		}
	}

	go discovery.WatchHotplug(ctx, logger, sched.RequestResync)

	listenConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.ListenPort})
	if err != nil {
		return fmt.Errorf("fibrild: listening for OSC on port %d: %w", cfg.ListenPort, err)
	}
	defer listenConn.Close()

	go listenLoop(ctx, listenConn, ingest, sched, logger)

	logger.Infof("fibrild: listening on :%d, sending to %s:%d, tick %dms", cfg.ListenPort, cfg.SendHost, cfg.SendPort, cfg.TickMS)

	sched.Run(ctx)

	return nil
}

func listenLoop(ctx context.Context, conn *net.UDPConn, ingest *engine.Ingest, sched *engine.Scheduler, logger *log.Logger) {
	buf := make([]byte, 65535)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			logger.Warnf("fibrild: reading OSC packet: %v", err)

			continue
		}

		messages, err := osc.Decode(buf[:n])
		if err != nil {
			logger.Warnf("fibrild: decoding OSC packet: %v", err)

			continue
		}

		var events []engine.Event

		for _, m := range messages {
			ev, ok, err := osc.ToEvent(m)
			switch {
			case errors.Is(err, osc.ErrResync):
				sched.RequestResync()
			case errors.Is(err, osc.ErrQueryActiveCount):
				// Recognized but not answered: no reply is sent.
				// /active_count is pushed only when the count changes.
			case err != nil:
				logger.Warnf("fibrild: %v", err)
			case ok:
				events = append(events, ev)
			}
		}

		if len(events) > 0 {
			ingest.ApplyBatch(events)
		}
	}
}
