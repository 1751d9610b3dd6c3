// EMS Console - Modbus device configuration service
//
// This is the main entry point for the EMS console backend. It stores the
// Modbus devices and registers configured by operators, serves the REST
// API and event stream used by the browser UI, and pushes the resulting
// configuration to the energy management backend.
//
// Usage:
//
//	emsconsole                      run the service (config from EMS_CONFIG)
//	emsconsole hash-password [pw]   print an Argon2id hash for security.users
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/ems-console/internal/api"
	"github.com/nerrad567/ems-console/internal/audit"
	"github.com/nerrad567/ems-console/internal/auth"
	"github.com/nerrad567/ems-console/internal/connection"
	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/infrastructure/config"
	"github.com/nerrad567/ems-console/internal/infrastructure/database"
	"github.com/nerrad567/ems-console/internal/infrastructure/influxdb"
	"github.com/nerrad567/ems-console/internal/infrastructure/logging"
	"github.com/nerrad567/ems-console/internal/infrastructure/mqtt"
	"github.com/nerrad567/ems-console/internal/push"
	"github.com/nerrad567/ems-console/internal/register"
	"github.com/nerrad567/ems-console/internal/service"
	"github.com/nerrad567/ems-console/internal/store"
	"github.com/nerrad567/ems-console/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword prints the PHC hash of the password given as the only
// argument, or of the first line of stdin.
func hashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	var password string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	case 1:
		password = args[0]
	default:
		return errors.New("usage: emsconsole hash-password [password]")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting EMS console",
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
	log.Info("configuration loaded",
		"path", configPath,
		"store", cfg.Store.Backend,
		"level", cfg.Logging.Level,
	)

	st, db, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	registers := register.NewRepository(st)
	registers.SetLogger(log.Component("registers"))
	devices := device.NewRepository(st, registers)
	devices.SetLogger(log.Component("devices"))

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Event fan-out: WebSocket hub always, MQTT when connected.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	fanout := events.NewFanout()
	fanout.SetLogger(log.Component("events"))
	fanout.Add("websocket", hub)
	if mqttClient != nil {
		fanout.Add("mqtt", events.NewMQTTSink(mqttClient))
	}

	var auditLog audit.Repository
	if db != nil {
		repo := audit.NewSQLiteRepository(db.DB)
		fanout.Add("audit", audit.NewSink(repo))
		auditLog = repo
	} else {
		log.Info("audit log disabled, it requires the sqlite store")
	}

	console := service.New(devices, registers, fanout)
	console.SetLogger(log.Component("console"))

	var statusRecorder connection.StatusRecorder
	var metricsRecorder api.Recorder
	if influxClient != nil {
		statusRecorder = influxClient
		metricsRecorder = influxClient
	}

	manager := connection.NewManager(devices, newProber(cfg.Connection, log), fanout, statusRecorder,
		time.Duration(cfg.Connection.Timeout)*time.Second)
	manager.SetLogger(log.Component("connection"))

	if mqttClient != nil {
		topics := mqttClient.Topics()
		if subErr := mqttClient.Subscribe(topics.AllDeviceReports(), mqttClient.QoS(), manager.ReportHandler(topics)); subErr != nil {
			return fmt.Errorf("subscribing to device reports: %w", subErr)
		}
		log.Info("listening for device reports", "topic", topics.AllDeviceReports())
	}

	users, err := auth.NewUsers(cfg.Security.Users)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	if users.Len() == 0 {
		log.Warn("no operators configured, logins will fail",
			"action_required", "add security.users entries using 'emsconsole hash-password'")
	}

	var pusher *push.Client
	if cfg.Push.URL != "" {
		pusher = push.New(push.Options{
			URL:         cfg.Push.URL,
			Payload:     cfg.Push.Payload,
			Timeout:     cfg.GetPushTimeout(),
			Concurrency: cfg.Push.Concurrency,
		}, nil)
		pusher.SetLogger(log.Component("push"))
	} else {
		log.Info("push backend not configured")
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Push:        cfg.Push,
		Logger:      log,
		Console:     console,
		Connections: manager,
		Pusher:      pusher,
		Users:       users,
		MQTT:        mqttClient,
		Recorder:    metricsRecorder,
		Events:      fanout,
		Audit:       auditLog,
		Hub:         hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openStore opens the configured persistence backend. The database is
// returned only for the sqlite backend. The returned func releases
// everything and is safe to defer.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*store.Store, *database.DB, func(), error) {
	opts := store.Options{
		Strict:            cfg.Store.CorruptionPolicy == config.CorruptionStrict,
		ConflictDetection: cfg.Store.ConflictDetection,
	}

	var (
		backend store.Backend
		sqlDB   *database.DB
		release = func() {}
	)

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		if err := db.HealthCheck(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("database: %w", err)
		}
		backend = store.NewSQLiteBackend(db)
		sqlDB = db
		release = func() {
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}
		log.Info("database ready", "path", cfg.Database.Path)

	case config.BackendBolt:
		b, err := store.OpenBolt(cfg.Bolt.Path, time.Duration(cfg.Bolt.OpenTimeout)*time.Second)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening bolt store: %w", err)
		}
		backend = b
		log.Info("bolt store ready", "path", cfg.Bolt.Path)

	default:
		backend = store.NewMemoryBackend()
		log.Warn("using in-memory store, data is lost on restart")
	}

	st := store.New(backend, opts)
	st.SetLogger(log.Component("store"))

	return st, sqlDB, func() {
		if err := st.Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
		release()
	}, nil
}

// newProber selects how Connect determines reachability.
func newProber(cfg config.ConnectionConfig, log *logging.Logger) connection.Prober {
	if cfg.Mode == config.ConnectionModbus {
		log.Info("connection probes use Modbus", "timeout_s", cfg.Timeout)
		return connection.NewModbusProber(time.Duration(cfg.Timeout) * time.Second)
	}
	log.Info("connection probes are simulated",
		"delay_ms", cfg.DelayMillis,
		"success_rate", cfg.SuccessRate,
	)
	return connection.NewSimulatedProber(time.Duration(cfg.DelayMillis)*time.Millisecond, cfg.SuccessRate)
}

// getConfigPath returns EMS_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("EMS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the optional infrastructure connections.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
