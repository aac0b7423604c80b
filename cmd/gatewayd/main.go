// gatewayd serves the gateway and peripheral registry.
//
// It exposes the registry over a REST API with a WebSocket event stream,
// and optionally mirrors committed changes to an MQTT broker and an
// InfluxDB bucket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/nerrad567/gray-logic-gateways/migrations"

	"github.com/nerrad567/gray-logic-gateways/internal/api"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "GATEWAYD_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	addr        string
	migrateOnly bool
	migrateDown bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("gatewayd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to config.yaml")
	fs.StringVar(&opts.addr, "addr", "", "listen address host:port, overriding api.host and api.port")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply schema migrations and exit")
	fs.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the latest schema migration and exit (sqlite only)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.migrateOnly && opts.migrateDown {
		return opts, errors.New("-migrate-only and -migrate-down are mutually exclusive")
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting gatewayd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.addr != "" {
		if err := applyListenAddr(&cfg.API, opts.addr); err != nil {
			return err
		}
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.configPath,
		"database_driver", cfg.Database.Driver,
		"log_level", cfg.Logging.Level,
	)

	if opts.migrateDown {
		return rollbackStore(ctx, cfg.Database, log)
	}

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.migrateOnly {
		log.Info("migrations complete, exiting")
		return nil
	}

	service := registry.NewService(store, registry.NewLinks(cfg.API.BasePath))
	service.SetLogger(log.Component("registry"))

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)
	notifiers := registry.Notifiers{hub}
	checks := make(map[string]api.HealthChecker)

	if cfg.MQTT.Enabled {
		if client := connectMQTT(cfg.MQTT, log); client != nil {
			mlog := log.Component("mqtt")
			defer func() {
				mlog.Info("disconnecting from MQTT")
				if closeErr := client.Close(); closeErr != nil {
					mlog.Error("error closing MQTT", "error", closeErr)
				}
			}()
			notifiers = append(notifiers, mqtt.NewEventPublisher(client, byte(cfg.MQTT.QoS), mlog))
			checks["mqtt"] = client
		}
	} else {
		log.Info("MQTT event publishing disabled")
	}

	if cfg.InfluxDB.Enabled {
		if recorder := connectInflux(cfg.InfluxDB, log); recorder != nil {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := recorder.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			notifiers = append(notifiers, recorder)
			checks["influxdb"] = recorder
		}
	} else {
		log.Info("InfluxDB event recording disabled")
	}

	service.SetNotifier(notifiers)

	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    service,
		ExternalHub: hub,
		Checks:      checks,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, service, srv, checks, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openStore opens the configured record store and brings its schema up
// to date. SQLite uses the embedded SQL migrations; postgres and mysql go
// through GORM and AutoMigrate.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (registry.Store, func(), error) {
	dbCfg := database.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		DSN:         cfg.DSN,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	}

	if cfg.Driver == config.DriverSQLite {
		db, err := database.Open(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		closeDB := func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}
		if err := db.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		if err := db.HealthCheck(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		log.Info("database connected", "driver", cfg.Driver, "path", cfg.Path)
		return registry.NewSQLiteStore(db.DB), closeDB, nil
	}

	gdb, err := database.OpenGorm(dbCfg, log.Component("database").Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := database.CloseGorm(gdb); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}
	store := registry.NewGormStore(gdb)
	if err := store.AutoMigrate(); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database connected", "driver", cfg.Driver)
	return store, closeDB, nil
}

// rollbackStore reverts the most recent SQL migration. GORM-managed
// schemas have no down migrations.
func rollbackStore(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) error {
	if cfg.Driver != config.DriverSQLite {
		return fmt.Errorf("-migrate-down is not supported for driver %q", cfg.Driver)
	}
	db, err := database.Open(database.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("latest migration rolled back, exiting", "path", cfg.Path)
	return nil
}

// connectMQTT connects the broker client used by the event publisher. An
// unreachable broker is logged and skipped so the registry keeps serving
// without it.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	mlog := log.Component("mqtt")
	client, err := mqtt.Connect(cfg)
	if err != nil {
		mlog.Warn("MQTT unavailable, event publishing disabled", "error", err)
		return nil
	}
	client.SetLogger(mlog)
	mlog.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic", client.Topics().AllRegistryEvents(),
	)
	return client
}

// connectInflux connects the event recorder. Like MQTT, an unreachable
// server is logged and skipped.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	ilog := log.Component("influxdb")
	client, err := influxdb.Connect(cfg)
	if err != nil {
		if !errors.Is(err, influxdb.ErrDisabled) {
			ilog.Warn("InfluxDB unavailable, event recording disabled", "error", err)
		}
		return nil
	}
	client.SetOnError(func(err error) {
		ilog.Error("InfluxDB write error", "error", err)
	})
	ilog.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client
}

// healthCheck verifies the record store and the API listener, then the
// optional sinks. Only the first two are fatal; a sink that dropped since
// connecting is logged.
func healthCheck(ctx context.Context, store, server api.HealthChecker, sinks map[string]api.HealthChecker, log *logging.Logger) error {
	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	for name, sink := range sinks {
		if err := sink.HealthCheck(ctx); err != nil {
			log.Warn("event sink unhealthy", "sink", name, "error", err)
		}
	}
	return nil
}

// applyListenAddr overrides the API host and port with a host:port flag.
func applyListenAddr(cfg *config.APIConfig, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid -addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid -addr %q: port must be between 1 and 65535", addr)
	}
	cfg.Host = host
	cfg.Port = port
	return nil
}

// getConfigPath returns GATEWAYD_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
