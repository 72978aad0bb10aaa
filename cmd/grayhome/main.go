// Gray Logic Home - device scheduling and usage service
//
// This is the main entry point. It wires the device registry, the control
// path, the schedule evaluator, the hardware reconciler and the REST API
// over a single SQLite database, with optional MQTT mirroring and InfluxDB
// telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-home/migrations"

	"github.com/nerrad567/gray-logic-home/internal/api"
	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-home/internal/metrics"
	"github.com/nerrad567/gray-logic-home/internal/reconcile"
	"github.com/nerrad567/gray-logic-home/internal/schedule"
	"github.com/nerrad567/gray-logic-home/internal/usage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Home",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	loc, err := cfg.Site.Location()
	if err != nil {
		return fmt.Errorf("resolving site timezone: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	m := metrics.New()

	// Device registry
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Usage accounting
	accumulator := usage.NewAccumulator(usage.NewSQLiteRepository(db.DB), usage.TariffFromConfig(cfg.Usage), loc)
	accumulator.SetLogger(log.Component("usage"))
	accumulator.SetMetrics(m)
	if influxClient != nil {
		accumulator.SetEnergySink(influxClient)
	}

	// Control path
	dispatcher := control.NewDispatcher(cfg.Control)
	dispatcher.SetLogger(log.Component("dispatch"))
	dispatcher.SetMetrics(m)

	controlSvc := control.NewService(registry, dispatcher, accumulator, audit.NewSQLiteRepository(db.DB))
	controlSvc.SetLogger(log.Component("control"))
	controlSvc.SetMetrics(m)
	controlSvc.SetDefaultFanSpeed(cfg.Control.DefaultFanSpeed)

	// Schedules
	scheduleRepo := schedule.NewSQLiteRepository(db.DB)
	scheduleSvc := schedule.NewService(scheduleRepo, registry, loc)
	scheduleSvc.SetLogger(log.Component("schedule"))

	// MQTT (optional). Nothing is mirrored or subscribed until the API hub
	// is registered below.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, cfg.Site.ID, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	// REST API. The listener starts after the loops.
	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Usage:     cfg.Usage,
		Location:  loc,
		Logger:    log.Component("api"),
		Registry:  registry,
		Control:   controlSvc,
		Logs:      audit.NewSQLiteRepository(db.DB),
		Stats:     accumulator,
		Schedules: scheduleSvc,
		Metrics:   m,
		Database:  db,
		Version:   version,
	}
	if mqttClient != nil {
		deps.Broker = mqttClient
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Every publisher is registered before anything can produce a
	// transition.
	controlSvc.AddPublisher(server.Hub())
	if mqttClient != nil {
		if bridgeErr := bridgeMQTT(mqttClient, controlSvc, log); bridgeErr != nil {
			return bridgeErr
		}
	}

	evaluator := schedule.NewEvaluator(scheduleRepo, controlSvc, schedule.EvaluatorConfig{
		Interval:    cfg.SchedulerInterval(),
		GraceWindow: cfg.GraceWindow(),
		Workers:     cfg.Scheduler.Workers,
		Location:    loc,
	})
	evaluator.SetLogger(log.Component("evaluator"))
	evaluator.SetMetrics(m)
	evaluator.Start(ctx)
	defer evaluator.Stop()

	// Hardware reconciler (optional)
	if cfg.Sync.Enabled {
		reconciler := reconcile.NewReconciler(registry, controlSvc, cfg.Sync)
		reconciler.SetLogger(log.Component("reconcile"))
		reconciler.SetMetrics(m)
		if influxClient != nil {
			reconciler.SetClimateSink(influxClient)
		}
		reconciler.Start(ctx)
		defer reconciler.Stop()
	} else {
		log.Info("hardware reconciler disabled")
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, reconciler, evaluator, MQTT,
	// InfluxDB, database.
	return nil
}

// connectMQTT connects to the broker for site siteID.
func connectMQTT(cfg config.MQTTConfig, siteID string, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg, siteID)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"site", siteID,
	)
	return client, nil
}

// bridgeMQTT mirrors device updates onto the broker and routes device
// command topics into the control service.
func bridgeMQTT(client *mqtt.Client, svc *control.Service, log *logging.Logger) error {
	mirror := control.NewMQTTMirror(client)
	mirror.SetLogger(log.Component("mqtt_mirror"))
	svc.AddPublisher(mirror)

	if err := client.HandleCommands(control.CommandHandler(svc)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", mqtt.Topics{}.AllDeviceCommands(), err)
	}
	return nil
}
