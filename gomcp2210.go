package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	c "lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/device"
	"lautenbacher.net/gomcp2210/logging"
	"lautenbacher.net/gomcp2210/monitor"
	pl "lautenbacher.net/gomcp2210/platform"
	"lautenbacher.net/gomcp2210/transfer"
)

type stopReason int

const (
	stopNone stopReason = iota
	stopSignal
	stopReload
)

// App runs sessions against the bridge until a signal arrives, a session
// ends on its own or fails. A changed config file restarts the session.
type App struct {
	ossignal     chan os.Signal
	configFile   string
	modeOverride string
	simulate     bool
	once         bool
	reloadSettle time.Duration
	newPlatform  func(conf *c.Config, simulate bool) pl.Platform
	watch        func(ctx context.Context, cfile string, settle time.Duration) (<-chan struct{}, error)
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{
		ossignal:     ossignal,
		configFile:   c.CONFILE,
		reloadSettle: 500 * time.Millisecond,
		newPlatform:  pl.New,
		watch:        c.Watch,
	}
}

func main() {
	cfile := flag.String("c", c.CONFILE, "config file to use")
	mode := flag.String("mode", "", "override the configured mode: led or temperature")
	sim := flag.Bool("sim", false, "run against a simulated MCP2210")
	once := flag.Bool("once", false, "temperature mode: stop after the first sample")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM)

	app := NewApp(ossignal)
	app.configFile = *cfile
	app.modeOverride = *mode
	app.simulate = *sim
	app.once = *once

	err := app.Run()
	if cerr := logging.Close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "closing log file:", cerr)
	}
	if err != nil {
		slog.Error("Session failed", "error", err)
		os.Exit(1)
	}
}

// Run loops over sessions. It returns nil after a signal or a session that
// finished its work.
func (a *App) Run() error {
	for {
		conf, err := a.loadConfig()
		if err != nil {
			return err
		}
		reason, err := a.runSession(conf)
		if err != nil {
			return err
		}
		if reason != stopReload {
			return nil
		}
		slog.Info("Reloading configuration", "file", a.configFile)
	}
}

func (a *App) loadConfig() (*c.Config, error) {
	conf, err := c.ReadConfig(a.configFile)
	if err != nil {
		return nil, err
	}
	if a.modeOverride != "" {
		conf.Mode = strings.ToLower(a.modeOverride)
		if err := conf.Validate(); err != nil {
			return nil, err
		}
	}
	logToFile := conf.Logging.File != ""
	if err := logging.Init(conf.Logging.Level, conf.Logging.Format, logToFile, conf.Logging.File); err != nil {
		return nil, fmt.Errorf("can't initialise logging: %w", err)
	}
	return conf, nil
}

func (a *App) runSession(conf *c.Config) (stopReason, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changed <-chan struct{}
	if !a.once {
		ch, err := a.watch(ctx, conf.Configfile, a.reloadSettle)
		if err != nil {
			slog.Warn("Config reload disabled", "error", err)
		}
		changed = ch
	}

	reasons := make(chan stopReason, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.ossignal:
				slog.Info("Received signal, shutting down")
				reasons <- stopSignal
				cancel()
				return
			case _, ok := <-changed:
				if !ok {
					// watcher gone, keep serving signals
					changed = nil
					continue
				}
				reasons <- stopReload
				cancel()
				return
			}
		}
	}()

	err := a.session(ctx, conf, cancel)
	cancel()
	select {
	case r := <-reasons:
		return r, nil
	default:
		return stopNone, err
	}
}

// session runs one job on a fresh platform.
func (a *App) session(ctx context.Context, conf *c.Config, cancel context.CancelFunc) error {
	job, err := buildJob(conf)
	if err != nil {
		return err
	}
	policy, err := conf.RetryPolicy()
	if err != nil {
		return err
	}

	plat := a.newPlatform(conf, a.simulate)
	if err := plat.Start(); err != nil {
		return err
	}
	defer plat.Stop()

	ctrl := transfer.New(plat.Transport(),
		transfer.WithRetryPolicy(policy),
		transfer.WithLogger(slog.Default()),
		transfer.WithStateCallback(func(from, to transfer.State) {
			if to.Terminal() {
				slog.Info("Controller finished", "from", from, "state", to)
				return
			}
			slog.Debug("Controller state", "from", from, "to", to)
		}),
	)
	slog.Info("Starting session", "mode", conf.Mode, "platform", plat.Status(),
		"bitrate", job.Spi.BitRate, "cs", job.Spi.SelectedPins())

	if conf.Mode == c.ModeLED {
		res, err := ctrl.Run(ctx, job, transfer.Discard)
		if err != nil {
			return fmt.Errorf("led job failed: %w", err)
		}
		slog.Info("LED pattern written", "pattern", fmt.Sprintf("0x%02X", conf.LED.Pattern),
			"attempts", res.Attempts, "platform", plat.Status())
		return nil
	}

	var mon *monitor.Server
	monDone := make(chan struct{})
	if conf.Monitor.Enabled {
		mon = monitor.New(conf.Monitor.Listen, conf.Temperature.Window, conf.Configfile)
		go func() {
			defer close(monDone)
			if err := mon.Run(ctx); err != nil {
				slog.Error("Monitor failed", "error", err)
			}
		}()
	} else {
		close(monDone)
	}

	action := &device.TemperatureAction{Emit: func(s device.TemperatureSample) {
		slog.Info("Temperature", "celsius", s.Celsius, "raw", fmt.Sprintf("0x%04X", s.Raw))
		if mon != nil {
			mon.Publish(s)
		}
		if a.once {
			cancel()
		}
	}}
	err = ctrl.Sample(ctx, job, conf.Temperature.Interval, action)
	cancel()
	<-monDone
	if err != nil {
		return fmt.Errorf("temperature sampling failed: %w", err)
	}
	return nil
}
