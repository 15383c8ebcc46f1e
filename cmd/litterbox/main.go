// Gray Logic Litter Box - PetMarvel cloud bridge
//
// This is the main entry point for the litter box bridge. It polls one
// PetMarvel litter box through the vendor cloud and exposes it to the rest
// of a Gray Logic site over MQTT and a REST/WebSocket API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/api"
	"github.com/nerrad567/gray-logic-litterbox/internal/auth"
	"github.com/nerrad567/gray-logic-litterbox/internal/bridges/petmarvel"
	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/history"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
	"github.com/nerrad567/gray-logic-litterbox/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often snapshot history older than the retention
// window is deleted.
const pruneInterval = 24 * time.Hour

func main() {
	configFlag := flag.String("config", "", "path to config.yaml (overrides LITTERBOX_CONFIG)")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin, print its Argon2id hash and exit")
	migrateStatus := flag.Bool("migrate-status", false, "print applied and pending schema migrations and exit")
	migrateDown := flag.Bool("migrate-down", false, "roll back the newest applied schema migration and exit")
	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *configFlag != "" {
		os.Setenv("LITTERBOX_CONFIG", *configFlag) //nolint:errcheck // Only fails on invalid key
	}

	if *migrateStatus || *migrateDown {
		if err := runMigrationCommand(context.Background(), *migrateDown, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic litter box bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := history.NewSQLiteRepository(db.DB)

	// Vendor cloud session
	sessionCfg := cloudConfig(cfg)
	session := cloud.NewSession(sessionCfg)
	session.SetLogger(log.Component("cloud"))

	creds := cloud.Credentials{
		Country:  cfg.Cloud.Country,
		Account:  cfg.Cloud.Account,
		Password: cfg.Cloud.Password,
	}

	iotID := cfg.Cloud.DeviceID
	if iotID == "" {
		iotID, err = discoverDevice(ctx, session, creds, log)
		if err != nil {
			return err
		}
	}

	ctrl := litterbox.NewController(session, controllerConfig(cfg, iotID, creds, historyRepo))
	ctrl.SetLogger(log.Component("litterbox").With("iot_id", iotID))
	ctrl.OnUpdate(history.NewRecorder(historyRepo, iotID, log).Observe)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var telemetry petmarvel.Telemetry
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
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT and start the bridge (optional)
	var mqttClient *mqtt.Client
	var healthSource api.HealthSource
	var bridgeStats api.BridgeStats
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
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, reporter, startErr := startBridge(ctx, cfg, ctrl, session, mqttClient, telemetry, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("stopping litter box bridge")
			reporter.Stop()
			bridge.Stop()
		}()
		healthSource = reporter
		bridgeStats = bridge
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	authn, err := newAuthenticator(cfg.Security.Users)
	if err != nil {
		return fmt.Errorf("loading API users: %w", err)
	}
	if authn.Len() == 0 {
		log.Warn("no API users configured; only the health endpoint is usable")
	}

	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.Component("api"),
		Auth:       authn,
		Controller: ctrl,
		History:    historyRepo,
		Discover: func(ctx context.Context, c cloud.Credentials) ([]cloud.Device, litterbox.SetupOutcome, error) {
			probe := cloud.NewSession(sessionCfg)
			probe.SetLogger(log.Component("setup"))
			return litterbox.Discover(ctx, probe, c)
		},
		Health:  healthSource,
		Session: session,
		Bridge:  bridgeStats,
		DB:      db.DB,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Polling starts last so the first snapshot reaches every listener.
	ctrl.Start(ctx)
	defer func() {
		log.Info("stopping poller")
		ctrl.Stop()
	}()
	log.Info("poller started", "iot_id", iotID, "interval", cfg.PollInterval())

	if retention := cfg.HistoryRetention(); retention > 0 {
		go pruneHistory(ctx, historyRepo, retention, log)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: poller, API, bridge, MQTT,
	// InfluxDB, database.

	log.Info("Gray Logic litter box bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LITTERBOX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LITTERBOX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// cloudConfig maps the cloud section of the config onto a session config.
func cloudConfig(cfg *config.Config) cloud.Config {
	return cloud.Config{
		AppID:           cfg.Cloud.AppID,
		AppKey:          cfg.Cloud.AppKey,
		AppSecret:       cfg.Cloud.AppSecret,
		Language:        cfg.Cloud.Language,
		IntlBaseURL:     cfg.Cloud.LoginHost,
		DomesticBaseURL: cfg.Cloud.DomesticHost,
		RegionHost:      cfg.Cloud.RegionGateway,
		Scheme:          cfg.Cloud.GatewayScheme,
		Timeout:         cfg.CloudTimeout(),
	}
}

// controllerConfig maps the polling section of the config onto a controller
// config for iotID.
func controllerConfig(cfg *config.Config, iotID string, creds cloud.Credentials, usage litterbox.UsageSource) litterbox.Config {
	c := litterbox.DefaultConfig(iotID, creds)
	c.DeviceName = cfg.Cloud.DeviceName
	c.Interval = cfg.PollInterval()
	c.PropertiesRefreshAfter, c.PropertiesDiscardAfter = cfg.PropertiesWindows()
	c.UsageRefreshAfter, c.UsageDiscardAfter = cfg.UsageWindows()
	c.Usage = usage
	c.UsageLimit = cfg.Polling.UsageHistoryLimit
	return c
}

// discoverDevice picks the first litter box on the account when no device
// id is configured.
func discoverDevice(ctx context.Context, session *cloud.Session, creds cloud.Credentials, log *logging.Logger) (string, error) {
	devices, outcome, err := litterbox.Discover(ctx, session, creds)
	switch outcome {
	case litterbox.OutcomeOK:
	case litterbox.OutcomeNoDevices:
		return "", errors.New("no litter boxes are bound to the account; set cloud.device_id")
	default:
		return "", fmt.Errorf("discovering litter box (%s): %w", outcome, err)
	}

	d := devices[0]
	log.Info("litter box discovered",
		"iot_id", d.IoTID,
		"name", d.DisplayName(),
		"product", d.ProductName,
		"candidates", len(devices),
	)
	if len(devices) > 1 {
		log.Warn("several litter boxes found; set cloud.device_id to choose one")
	}
	return d.IoTID, nil
}

// startBridge starts the MQTT bridge and its health reporter.
//
// Returns:
//   - *petmarvel.Bridge: Running bridge
//   - *petmarvel.HealthReporter: Running reporter
//   - error: If the bridge cannot subscribe to its command topic
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	ctrl *litterbox.Controller,
	session *cloud.Session,
	mqttClient *mqtt.Client,
	telemetry petmarvel.Telemetry,
	log *logging.Logger,
) (*petmarvel.Bridge, *petmarvel.HealthReporter, error) {
	bridgeLog := log.Component("bridge")

	bridge, err := petmarvel.NewBridge(petmarvel.Options{
		Controller: ctrl,
		MQTT:       mqttClient,
		Telemetry:  telemetry,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating bridge: %w", err)
	}
	bridge.SetLogger(bridgeLog)

	reporter := petmarvel.NewHealthReporter(petmarvel.HealthReporterConfig{
		Version:    version,
		Interval:   cfg.PollInterval(),
		Publisher:  mqttClient,
		Session:    session,
		Controller: ctrl,
		Commands:   bridge,
	})
	reporter.SetLogger(bridgeLog)
	if err := reporter.PublishStarting(); err != nil {
		bridgeLog.Warn("publishing starting status failed", "error", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting bridge: %w", err)
	}
	reporter.Start(ctx)
	bridgeLog.Info("litter box bridge started")

	return bridge, reporter, nil
}

// newAuthenticator builds the API user table from config.
func newAuthenticator(users []config.APIUserConfig) (*auth.Authenticator, error) {
	out := make([]auth.User, 0, len(users))
	for _, u := range users {
		out = append(out, auth.User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Role:         auth.Role(u.Role),
		})
	}
	return auth.NewAuthenticator(out)
}

// pruneHistory deletes old snapshot history now and then once a day.
func pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn("pruning snapshot history failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("pruned snapshot history", "rows", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// printPasswordHash reads one line from r and writes its Argon2id hash to w.
func printPasswordHash(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// runMigrationCommand opens the configured database and either rolls back
// the newest migration (down) or only reports, then prints the status to w.
func runMigrationCommand(ctx context.Context, down bool, w io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly command

	if down {
		if err := db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	}
	return printMigrationStatus(ctx, db, migrations.FS, w)
}

// printMigrationStatus writes one line per known migration.
func printMigrationStatus(ctx context.Context, db *database.DB, fsys fs.FS, w io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		if _, err := fmt.Fprintf(w, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	for _, m := range pending {
		if _, err := fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name); err != nil {
			return err
		}
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

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

	// The vendor cloud is not checked here: an outage only marks the
	// device unavailable and the poller keeps retrying.
	return nil
}
