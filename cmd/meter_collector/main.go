// Meter collector polls every configured device on a fixed cadence and
// stores incremental readings. Run with -once for a single diagnostic cycle.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/logging"
	"github.com/dvhome/house_energy_monitor/pkg/meterdb"
	"github.com/dvhome/house_energy_monitor/pkg/mqttbridge"
	"github.com/dvhome/house_energy_monitor/pkg/pathing"
	"github.com/dvhome/house_energy_monitor/pkg/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run exactly one poll cycle and exit")
	configPath := flag.String("config", pathing.GetCollectorConfigPath(), "path to collector.toml")
	flag.Parse()

	cfg, err := config.LoadCollectorConfig(*configPath)
	if err != nil {
		// A broken config at startup still gets a running collector on
		// documented defaults; the next cycle retries the file.
		cfg = config.DefaultCollectorConfig()
	}

	log := logging.Setup(cfg.Logging)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Config load failed, using defaults")
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = pathing.GetMeterDbPath()
	}
	store := meterdb.New(dbPath, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(*configPath, cfg, store, log)

	if cfg.MQTT.Enabled {
		bridge, err := mqttbridge.Connect(cfg.MQTT, log)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT broker unavailable, readings will not be republished")
		} else {
			defer bridge.Close()
			sched.SetSink(bridge)
		}
	}

	log.Info().Bool("once", *once).Msg("Starting meter collector")
	if err := sched.Run(ctx, *once); err != nil {
		// Startup storage failure is the one unrecoverable case.
		log.Error().Err(err).Msg("Collector stopped: storage unavailable")
		store.Close()
		os.Exit(1)
	}

	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}
	log.Info().Msg("Collector stopped cleanly")
}
