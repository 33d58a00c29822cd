package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides Web.Token when set.
const TokenEnv = "HELPRELAY_TOKEN"

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Web          WebConfig          `yaml:"web"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Registration RegistrationConfig `yaml:"registration"`
	Registry     RegistryConfig     `yaml:"registry"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Requests     RequestsConfig     `yaml:"requests"`
	Redis        RedisConfig        `yaml:"redis"`
	Audit        AuditConfig        `yaml:"audit"`
	Messaging    MessagingConfig    `yaml:"messaging"`
	Mailbox      MailboxConfig      `yaml:"mailbox"`
}

type WebConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"` // shared secret for /mesh, the operator API and gateways
}

type DiscoveryConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RegistrationConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RegistryConfig struct {
	OfflineAfter  time.Duration `yaml:"offline_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type GatewayConfig struct {
	URLs    []string      `yaml:"urls"`
	Port    int           `yaml:"port"` // used with the observed source when URLs is empty
	Timeout time.Duration `yaml:"timeout"`
}

type RequestsConfig struct {
	SkipDetails  bool          `yaml:"skip_details"`
	FleetSize    int           `yaml:"fleet_size"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuditConfig struct {
	Driver   string         `yaml:"driver"` // "none", "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "none", "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	RenderTopic         string        `yaml:"render_topic"`
	ActionTopic         string        `yaml:"action_topic"`
	ClientID            string        `yaml:"client_id"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Port   int    `yaml:"port"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MailboxConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

func Defaults() *Config {
	return &Config{
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Discovery: DiscoveryConfig{
			Host: "0.0.0.0",
			Port: 45678,
		},
		Registration: RegistrationConfig{
			Host: "0.0.0.0",
			Port: 9010,
		},
		Registry: RegistryConfig{
			OfflineAfter:  90 * time.Second,
			SweepInterval: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Port:    8081,
			Timeout: 5 * time.Second,
		},
		Requests: RequestsConfig{
			FleetSize:    30,
			ProbeTimeout: 4 * time.Second,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Audit: AuditConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "helprelay.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "helprelay",
				User:     "helprelay",
				SSLMode:  "disable",
			},
		},
		Messaging: MessagingConfig{
			Backend: "none",
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "helprelay",
			},
			RenderTopic:         "helprelay.requests",
			ActionTopic:         "helprelay.actions",
			ClientID:            "helprelay",
			OutboxDrainInterval: 5 * time.Second,
		},
		Mailbox: MailboxConfig{
			CacheDir: "audio_cache",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Web.Token = tok
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
