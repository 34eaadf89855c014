// savecair-bridge connects a Systemair SAVE ventilation unit, reached through
// the savecair cloud websocket, to MQTT, an HTTP/WebSocket API, Prometheus
// and InfluxDB.
//
// Usage:
//
//	savecair-bridge          run the bridge until SIGINT/SIGTERM
//	savecair-bridge -check   log in once and print the machine ID
//	savecair-bridge -hash-password < pw.txt
//	                         print an argon2id hash for security.admin.password_hash
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/savecair-bridge/internal/api"
	"github.com/nerrad567/savecair-bridge/internal/auth"
	"github.com/nerrad567/savecair-bridge/internal/bridges/climate"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/config"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// statsInterval is how often transport counters are written to InfluxDB.
const statsInterval = 60 * time.Second

func main() {
	check := flag.Bool("check", false, "log in once, print the machine ID and exit")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin and print its argon2id hash")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch {
	case *hashPassword:
		err = runHashPassword(os.Stdin, os.Stdout)
	case *check:
		err = runCheck(ctx, os.Stdout)
	default:
		err = run(ctx)
	}
	if err != nil {
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
	log := logging.Default()
	log.Info("starting savecair bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	session, err := newSession(cfg.Gateway, log)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer func() {
		log.Info("closing gateway session")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	machineID, err := connectAndLogin(ctx, session, cfg.Gateway)
	if err != nil {
		return err
	}
	log.Info("logged in to savecair gateway",
		"url", cfg.Gateway.URL,
		logging.Masked("iam_id", cfg.Gateway.IAMID),
		"machine_id", machineID,
		"sensors", len(session.Subscribed()),
	)

	// Every reconnect clears the login; log in again so polling resumes.
	session.Transport().OnOpen(func() {
		go relogin(ctx, session, cfg.Gateway, log)
	})
	session.OnClose(func() {
		log.Warn("gateway connection closed")
	})

	// Connect to MQTT broker (bridge only)
	var mqttClient *mqtt.Client
	var bridge *climate.Bridge
	if cfg.Bridge.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, err = startBridge(ctx, cfg, session, mqttClient, log)
		if err != nil {
			return fmt.Errorf("starting climate bridge: %w", err)
		}
		defer func() {
			log.Info("stopping climate bridge")
			bridge.Stop()
		}()

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected, republishing state")
			bridge.ClearStateCache()
			bridge.HandleUpdate(session.Snapshot())
		})
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		go recordTransportStats(ctx, influxClient, cfg.Bridge.ID, session)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Gateway:  session,
			Version:  version,
		}
		if bridge != nil {
			deps.Bridge = bridge
		}
		apiServer, err = api.New(deps)
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
	} else {
		log.Info("HTTP API disabled")
	}

	// Fan every update out to each enabled sink.
	session.OnUpdate(func(snapshot savecair.Snapshot) {
		if bridge != nil {
			bridge.HandleUpdate(snapshot)
		}
		if apiServer != nil {
			apiServer.PublishUpdate(snapshot)
		}
		if influxClient != nil {
			influxClient.WriteSnapshot(cfg.Bridge.ID, snapshot, time.Now())
		}
	})
	session.OnError(func(payload savecair.ErrorPayload) {
		log.Warn("gateway reported error", "error_type_id", payload.ErrorTypeID)
		if bridge != nil {
			bridge.HandleError(payload)
		}
		if apiServer != nil {
			apiServer.PublishError(payload)
		}
	})

	if err := healthCheck(ctx, session, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, InfluxDB, bridge, MQTT, session.
	return nil
}

// runCheck logs in once with the configured credentials and writes the
// machine ID, or the onboarding error key, to out.
func runCheck(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	gw := cfg.Gateway
	gw.Reconnect = false
	session, err := newSession(gw, log)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer session.Close() //nolint:errcheck // process exits next

	machineID, err := connectAndLogin(ctx, session, gw)
	if err != nil {
		fmt.Fprintln(out, savecair.AuthErrorKey(err))
		return err
	}
	fmt.Fprintln(out, machineID)
	return nil
}

// runHashPassword reads one line from in and writes its argon2id hash to
// out, for use as security.admin.password_hash.
func runHashPassword(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := scanner.Text()
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Fprintln(out, hash)
	return nil
}

// newSession builds a session from gateway configuration. Without
// load_all or an explicit sensor list, the climate sensors are subscribed.
func newSession(cfg config.GatewayConfig, log *logging.Logger) (*savecair.Session, error) {
	sensors := cfg.Sensors
	if !cfg.LoadAll && len(sensors) == 0 {
		sensors = savecair.ClimateSensors()
	}

	session, err := savecair.NewSession(savecair.SessionConfig{
		Transport: savecair.TransportConfig{
			URL:               cfg.URL,
			Reconnect:         cfg.Reconnect,
			ReconnectInterval: cfg.GetReconnectInterval(),
			HandshakeTimeout:  cfg.GetHandshakeTimeout(),
			WriteTimeout:      cfg.GetWriteTimeout(),
		},
		IAMID:        cfg.IAMID,
		Password:     cfg.Password,
		PollInterval: cfg.GetPollInterval(),
		LoadAll:      cfg.LoadAll,
		Sensors:      sensors,
		LoginTimeout: cfg.GetLoginTimeout(),
	})
	if err != nil {
		return nil, err
	}
	session.SetLogger(log)
	return session, nil
}

// connectAndLogin dials the gateway and logs in. It succeeds only when the
// gateway reports the unit's machine ID.
func connectAndLogin(ctx context.Context, session *savecair.Session, cfg config.GatewayConfig) (string, error) {
	if err := session.Connect(ctx); err != nil {
		return "", fmt.Errorf("connecting to gateway: %w", err)
	}

	snapshot, err := session.Login(ctx, cfg.IAMID, cfg.Password)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}

	machineID, _ := snapshot.String(savecair.KeyMachineID)
	if machineID == "" {
		return "", fmt.Errorf("logging in: %w: no machine ID in response", savecair.ErrUnknownAuth)
	}
	return machineID, nil
}

// relogin restores the session login after a reconnect.
func relogin(ctx context.Context, session *savecair.Session, cfg config.GatewayConfig, log *logging.Logger) {
	if _, err := session.Login(ctx, cfg.IAMID, cfg.Password); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("re-login after reconnect failed", "error", err, "reason", savecair.AuthErrorKey(err))
		return
	}
	log.Info("re-logged in after reconnect")
}

// startBridge creates and starts the MQTT climate bridge.
func startBridge(ctx context.Context, cfg *config.Config, session *savecair.Session, mqttClient *mqtt.Client, log *logging.Logger) (*climate.Bridge, error) {
	bridge, err := climate.NewBridge(climate.BridgeOptions{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		HealthInterval: cfg.Bridge.GetHealthInterval(),
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Gateway:        session,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	bridge.HandleUpdate(session.Snapshot())
	log.Info("climate bridge started", "bridge_id", cfg.Bridge.ID)
	return bridge, nil
}

// recordTransportStats periodically writes transport counters to InfluxDB.
func recordTransportStats(ctx context.Context, influxClient *influxdb.Client, bridgeID string, session *savecair.Session) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := session.Stats()
			influxClient.WriteTransportStats(bridgeID, map[string]interface{}{
				"frames_tx":     stats.FramesTx,
				"frames_rx":     stats.FramesRx,
				"decode_errors": stats.DecodeErrors,
				"errors":        stats.ErrorsTotal,
				"reconnects":    stats.ReconnectsTotal,
				"authenticated": session.IsAuthenticated(),
			})
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, session *savecair.Session, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := session.Transport().HealthCheck(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
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
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the climate
// bridge's MQTTClient interface, whose handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements climate.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements climate.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements climate.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
