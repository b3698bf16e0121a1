package config

import (
	"fmt"
	"time"

	"github.com/vrischmann/envconfig"
)

// Config is the per-process bundle read once at startup and handed to every
// component; nothing here is a user-facing flag.
type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`
	ListenAddr  string `envconfig:"LISTEN_ADDR,optional"`
	NodeName    string `envconfig:"NODE_NAME,optional"`

	// resource control plane and the identifiers of the managed resources
	ControlPlaneURL string `envconfig:"CONTROL_PLANE_URL"`
	ListenerID      string `envconfig:"LISTENER_ID"`
	ClusterID       string `envconfig:"CLUSTER_ID"`
	ServiceID       string `envconfig:"SERVICE_ID"`
	DBInstanceID    string `envconfig:"DB_INSTANCE_ID"`

	// scheme and domain the backend serves on, used to rebuild absolute URLs
	// for replay
	BackendScheme string `envconfig:"BACKEND_SCHEME,optional"`
	BackendDomain string `envconfig:"BACKEND_DOMAIN"`

	// managed rules: pools are used for discovery, stored rule IDs win when set
	PlaceholderPool   string `envconfig:"PLACEHOLDER_POOL"`
	BackendPool       string `envconfig:"BACKEND_POOL"`
	PlaceholderRuleID string `envconfig:"PLACEHOLDER_RULE_ID,optional"`
	BackendRuleID     string `envconfig:"BACKEND_RULE_ID,optional"`

	DrainInterval       time.Duration `envconfig:"DRAIN_INTERVAL,optional"`
	DrainBudget         time.Duration `envconfig:"DRAIN_BUDGET,optional"`
	ReadinessInterval   time.Duration `envconfig:"READINESS_INTERVAL,optional"`
	ReadinessBudget     time.Duration `envconfig:"READINESS_BUDGET,optional"`
	StartupWaitForReady bool          `envconfig:"STARTUP_WAIT_FOR_READY,optional"`

	ReplayInterval      time.Duration `envconfig:"REPLAY_INTERVAL,optional"`
	ReplayMaxAttempts   uint          `envconfig:"REPLAY_MAX_ATTEMPTS,optional"`
	ReplayPerTryTimeout time.Duration `envconfig:"REPLAY_PER_TRY_TIMEOUT,optional"`

	WakeRunBudget      time.Duration `envconfig:"WAKE_RUN_BUDGET,optional"`
	HibernateRunBudget time.Duration `envconfig:"HIBERNATE_RUN_BUDGET,optional"`

	// optional transition history store
	DatabaseHost     string `envconfig:"DATABASE_HOST,optional"`
	DatabaseUser     string `envconfig:"DATABASE_USER,optional"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,optional"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,optional"`

	// optional lifecycle event bus
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS,optional"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC,optional"`

	// optional statsd sink
	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`
}

func Load() (Config, error) {
	cfg := Config{}
	if err := envconfig.Init(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read app config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:8080"
	}
	if cfg.NodeName == "" {
		cfg.NodeName = "hibernator-0"
	}
	if cfg.BackendScheme == "" {
		cfg.BackendScheme = "https"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "hibernator-lifecycle"
	}
	return cfg, nil
}
