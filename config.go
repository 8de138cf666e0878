package cohort

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/server"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const (
	DefHTTPPort          = "7070"
	DefMQTTAddress       = "tcp://localhost:1883"
	DefHeartbeatInterval = 2 * time.Second
)

type Config struct {
	Manager ManagerConfig    `toml:"manager"`
	Worker  WorkerConfig     `toml:"worker"`
	Fit     estimator.Config `toml:"fit"`
}

type MQTTConfig struct {
	Address  string        `toml:"address"  env:"ADDRESS"`
	QoS      uint8         `toml:"qos"      env:"QOS"`
	Timeout  time.Duration `toml:"timeout"  env:"TIMEOUT"`
	Username string        `toml:"username" env:"USERNAME"`
	Password string        `toml:"password" env:"PASSWORD"`
}

type ManagerConfig struct {
	LogLevel     string         `toml:"log_level"     env:"COHORT_MANAGER_LOG_LEVEL"`
	InstanceID   string         `toml:"instance_id"   env:"COHORT_MANAGER_INSTANCE_ID"`
	AliveTimeout time.Duration  `toml:"alive_timeout" env:"COHORT_MANAGER_ALIVE_TIMEOUT"`
	HTTP         server.Config  `toml:"http"          envPrefix:"COHORT_MANAGER_HTTP_"`
	MQTT         MQTTConfig     `toml:"mqtt"          envPrefix:"COHORT_MANAGER_MQTT_"`
	History      storage.Config `toml:"history"       envPrefix:"COHORT_HISTORY_"`
}

type WorkerConfig struct {
	ID                string        `toml:"id"                 env:"COHORT_WORKER_ID"`
	LogLevel          string        `toml:"log_level"          env:"COHORT_WORKER_LOG_LEVEL"`
	Concurrency       int           `toml:"concurrency"        env:"COHORT_WORKER_CONCURRENCY"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" env:"COHORT_WORKER_HEARTBEAT_INTERVAL"`
	MQTT              MQTTConfig    `toml:"mqtt"               envPrefix:"COHORT_WORKER_MQTT_"`
}

func DefaultConfig() Config {
	mqttCfg := MQTTConfig{
		Address: DefMQTTAddress,
		QoS:     1,
		Timeout: 30 * time.Second,
	}

	return Config{
		Manager: ManagerConfig{
			LogLevel:     "info",
			AliveTimeout: 10 * time.Second,
			HTTP:         server.Config{Host: "localhost", Port: DefHTTPPort},
			MQTT:         mqttCfg,
			History:      storage.DefaultConfig(),
		},
		Worker: WorkerConfig{
			LogLevel:          "info",
			Concurrency:       1,
			HeartbeatInterval: DefHeartbeatInterval,
			MQTT:              mqttCfg,
		},
		Fit: estimator.DefaultConfig(),
	}
}

// LoadConfig reads the TOML file at path on top of the defaults. An empty
// path skips the file. Environment variables take precedence over both.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		tree, err := toml.Load(string(data))
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		if err := tree.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	return &cfg, nil
}
