// Command tank-monitor watches a well pump and storage tank, drives the
// fill valve relays and raises alerts for abnormal tank behavior.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/tank-monitor/internal/config"
	"github.com/sweeney/tank-monitor/internal/gpio"
	"github.com/sweeney/tank-monitor/internal/interlock"
	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/metrics"
	"github.com/sweeney/tank-monitor/internal/monitor"
	"github.com/sweeney/tank-monitor/internal/mqtt"
	"github.com/sweeney/tank-monitor/internal/notify"
	"github.com/sweeney/tank-monitor/internal/relay"
	"github.com/sweeney/tank-monitor/internal/status"
	"github.com/sweeney/tank-monitor/internal/store"
	"github.com/sweeney/tank-monitor/internal/tank"
	"github.com/sweeney/tank-monitor/internal/web"
)

const defaultEnvFile = "/run/pi-helper.env"

// options is the static configuration from flags and the environment.
type options struct {
	tick         time.Duration
	poll         time.Duration
	snapshot     time.Duration
	debounce     time.Duration
	fetchTimeout time.Duration
	retention    time.Duration
	maxFailures  int

	pinPressure int
	pinFloat    int
	pins        relay.Pins

	broker     string
	clientID   string
	httpAddr   string
	tankURL    string
	webhookURL string
	stateDir   string
	settings   string
	envFile    string
	printState bool
}

func main() {
	// The env file supplies defaults for other flags, so it is loaded first.
	if err := config.LoadEnvFile(envFileArg(os.Args[1:])); err != nil {
		log.Printf("env file: %v", err)
	}

	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("flags: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// envFileArg scans args for --env-file ahead of flag parsing.
func envFileArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "env-file" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultEnvFile
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	pins := relay.DefaultPins
	fs.DurationVar(&o.tick, "tick", 5*time.Second, "Switch sampling interval")
	fs.DurationVar(&o.poll, "poll", 60*time.Second, "Tank sensor polling interval")
	fs.DurationVar(&o.snapshot, "snapshot", 15*time.Minute, "Snapshot grid interval")
	fs.DurationVar(&o.debounce, "debounce", 0, "Pressure switch debounce duration")
	fs.DurationVar(&o.fetchTimeout, "fetch-timeout", 10*time.Second, "Tank sensor request timeout")
	fs.DurationVar(&o.retention, "retention", 72*time.Hour, "Snapshot history reloaded at startup")
	fs.IntVar(&o.maxFailures, "max-failures", interlock.DefaultMaxFailures, "Consecutive tank read failures before the override is forced OFF")
	fs.IntVar(&o.pinPressure, "pin-pressure", gpio.PinPressure, "BCM pin number for the pressure switch")
	fs.IntVar(&o.pinFloat, "pin-float", gpio.PinFloat, "BCM pin number for the float switch (0 to disable)")
	fs.IntVar(&o.pins.Bypass, "pin-bypass", pins.Bypass, "BCM pin number for the bypass relay")
	fs.IntVar(&o.pins.Override, "pin-override", pins.Override, "BCM pin number for the override relay")
	fs.IntVar(&o.pins.Purge, "pin-purge", pins.Purge, "BCM pin number for the purge relay (0 to disable)")
	fs.StringVar(&o.broker, "broker", config.Getenv(config.EnvMQTTBroker, "tcp://192.168.1.200:1883"), "MQTT broker address (empty to disable)")
	fs.StringVar(&o.clientID, "client-id", "tank-monitor", "MQTT client ID")
	fs.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	fs.StringVar(&o.tankURL, "tank-url", config.Getenv(config.EnvTankURL, ""), "Tank sensor JSON endpoint")
	fs.StringVar(&o.webhookURL, "webhook", config.Getenv(config.EnvWebhookURL, ""), "Alert webhook URL (empty to disable)")
	fs.StringVar(&o.stateDir, "state-dir", "/var/lib/tank-monitor", "Directory for state files and logs")
	fs.StringVar(&o.settings, "settings", "/etc/tank-monitor/settings.yaml", "Live settings YAML file")
	fs.StringVar(&o.envFile, "env-file", defaultEnvFile, "Env file with defaults and network info")
	fs.BoolVar(&o.printState, "print-state", false, "Print current switch and relay state and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.tankURL == "" && !o.printState {
		return o, errors.New("no tank URL: set --tank-url or " + config.EnvTankURL)
	}
	if o.tick <= 0 || o.poll <= 0 || o.snapshot <= 0 {
		return o, errors.New("tick, poll and snapshot intervals must be positive")
	}
	return o, nil
}

func run(o options) error {
	switches, err := gpio.NewRealReader(o.pinPressure, o.pinFloat)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer switches.Close()

	relays, err := relay.NewRealDriver(o.pins)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer relays.Close()

	if o.printState {
		return printState(switches, relays)
	}

	state, err := store.OpenStateDir(o.stateDir)
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}
	snaps, err := store.OpenSnapshotLog(filepath.Join(o.stateDir, "snapshots.jsonl"), o.retention, time.Now())
	if err != nil {
		return fmt.Errorf("open snapshot log: %w", err)
	}
	if latest, ok := snaps.Latest(); ok {
		log.Printf("history: %d snapshots reloaded, latest %s", len(snaps.Recent()), latest.Timestamp.Format(time.RFC3339))
	}
	events := store.NewEventLog(filepath.Join(o.stateDir, "events.jsonl"))

	settings, err := config.LoadLive(o.settings)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go settings.Watch(ctx, 30*time.Second)

	il, err := interlock.New(relays, state, o.maxFailures)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      o.tick.Milliseconds(),
		PollMs:      o.poll.Milliseconds(),
		SnapshotMs:  o.snapshot.Milliseconds(),
		Broker:      o.broker,
		HTTPPort:    o.httpAddr,
		TankURL:     o.tankURL,
		StateDir:    o.stateDir,
		MaxFailures: o.maxFailures,
	})
	network := func() *status.NetworkInfo { return readNetworkInfo(o.envFile) }
	if info := network(); info != nil {
		tracker.SetNetwork(info)
	}

	var sinks []notify.Sink
	if o.webhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(o.webhookURL))
	}
	deps := monitor.Deps{
		Switches:  switches,
		Tank:      tank.NewHTTPFetcher(o.tankURL),
		Interlock: il,
		Purger:    monitor.NewPurger(relays),
		Snapshots: snaps,
		Events:    events,
		Settings:  settings,
		Status:    tracker,
		Metrics:   m,
		Network:   network,
	}
	if o.broker != "" {
		publisher := mqtt.NewRealPublisher(o.broker, o.clientID, mqtt.DefaultBufferSize)
		defer publisher.Close()
		deps.Publisher = publisher
		deps.MQTTStatus = publisher
		sinks = append(sinks, publisher)
	}
	if len(sinks) == 0 {
		log.Printf("no alert sink configured; alerts will be logged as failed")
	}

	dedup, err := notify.NewDedup(state)
	if err != nil {
		return fmt.Errorf("load dedup state: %w", err)
	}
	deps.Notifier, err = notify.NewNotifier(dedup, notify.NewMultiSink(sinks...), 10*time.Second)
	if err != nil {
		return err
	}

	var commands chan logic.RelayCommand
	if o.httpAddr != "" {
		commands = make(chan logic.RelayCommand, 8)
		deps.Commands = commands
		srv := web.New(o.httpAddr, tracker, reg, commands)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	cfg := monitor.Config{
		Tracker:      trackerConfig(o),
		PollInterval: o.poll,
		FetchTimeout: o.fetchTimeout,
		Location:     time.Local,
	}
	mon, err := monitor.New(cfg, deps, time.Now)
	if err != nil {
		return err
	}

	log.Printf("started: tick=%v poll=%v snapshot=%v broker=%s tank=%s",
		o.tick, o.poll, o.snapshot, o.broker, o.tankURL)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return mon.Run(ticker.C, sigCh)
}

func trackerConfig(o options) logic.TrackerConfig {
	tc := logic.DefaultTrackerConfig()
	tc.Debounce = o.debounce
	tc.SnapshotInterval = o.snapshot
	return tc
}

func printState(switches gpio.Reader, relays interlock.Driver) error {
	pressure, float, err := switches.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Printf("pressure: %s, float: %s\n", logic.BoolToState(pressure), float)
	for _, ch := range []logic.Channel{logic.ChannelBypass, logic.ChannelOverride, logic.ChannelPurge} {
		s, err := relays.Get(ch)
		if err != nil {
			return fmt.Errorf("read relay %s: %w", ch, err)
		}
		fmt.Printf("%s: %s\n", ch, s)
	}
	return nil
}

// readNetworkInfo returns network state from pi-helper's env file, falling
// back to the process environment when the file cannot be read. It returns
// nil when pi-helper has not reported a status.
func readNetworkInfo(envFile string) *status.NetworkInfo {
	get := os.Getenv
	if envFile != "" {
		if vars, err := config.ReadEnvFile(envFile); err == nil {
			get = func(k string) string { return vars[k] }
		}
	}
	s := get(config.EnvNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(config.EnvNetworkType),
		IP:         get(config.EnvNetworkIP),
		Status:     s,
		Gateway:    get(config.EnvNetworkGateway),
		WifiStatus: get(config.EnvNetworkWifiStatus),
		SSID:       get(config.EnvNetworkWifiSSID),
	}
}
