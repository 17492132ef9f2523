package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deploy-reconciler/pkg/logger"
)

// Config is the complete configuration of the receiver process.
type Config struct {
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Transport TransportConfig `yaml:"transport"`
	Store     StoreConfig     `yaml:"store"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   logger.Config   `yaml:"logging"`
}

// ReceiverConfig names the consumer registered on the transport.
type ReceiverConfig struct {
	Name string `yaml:"name" env:"RECON_RECEIVER_NAME"`
}

// TransportConfig selects where reports come from.
type TransportConfig struct {
	Type      string          `yaml:"type" env:"RECON_TRANSPORT"` // redis | websocket
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"RECON_REDIS_ADDR"`
	Password     string        `yaml:"password" env:"RECON_REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"RECON_REDIS_DB"`
	Queue        string        `yaml:"queue" env:"RECON_REDIS_QUEUE"`
	BlockTimeout time.Duration `yaml:"block_timeout" env:"RECON_REDIS_BLOCK_TIMEOUT"`
}

type WebSocketConfig struct {
	Listen    string `yaml:"listen" env:"RECON_WS_LISTEN"`
	TLSCert   string `yaml:"tls_cert" env:"RECON_WS_TLS_CERT"`
	TLSKey    string `yaml:"tls_key" env:"RECON_WS_TLS_KEY"`
	ClientCA  string `yaml:"client_ca" env:"RECON_WS_CLIENT_CA"`
	JWTSecret string `yaml:"jwt_secret" env:"RECON_WS_JWT_SECRET"`
	InboxSize int    `yaml:"inbox_size" env:"RECON_WS_INBOX_SIZE"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend" env:"RECON_STORE"` // memory | mysql | sqlite | consul
	MySQLDSN    string `yaml:"mysql_dsn" env:"MYSQL_DSN"`
	SQLitePath  string `yaml:"sqlite_path" env:"RECON_SQLITE_PATH"`
	ConsulAddr  string `yaml:"consul_addr" env:"RECON_CONSUL_ADDR"`
	ConsulToken string `yaml:"consul_token" env:"RECON_CONSUL_TOKEN"`
}

// JournalConfig enables the local report journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path" env:"RECON_JOURNAL_PATH"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Receiver: ReceiverConfig{Name: "nailgun"},
		Transport: TransportConfig{
			Type: "redis",
			Redis: RedisConfig{
				Addr:         "127.0.0.1:6379",
				Queue:        "reports",
				BlockTimeout: 5 * time.Second,
			},
			WebSocket: WebSocketConfig{
				Listen:    ":8090",
				InboxSize: 64,
			},
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "/var/lib/deploy-reconciler/records.db",
			ConsulAddr: "127.0.0.1:8500",
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Load reads configuration with precedence defaults < YAML file < environment.
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends, transports and log outputs.
func (c *Config) Validate() error {
	switch c.Transport.Type {
	case "redis", "websocket":
	default:
		return fmt.Errorf("unsupported transport: %q", c.Transport.Type)
	}
	switch c.Store.Backend {
	case "memory", "mysql", "sqlite", "consul":
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}
	if c.Receiver.Name == "" {
		return fmt.Errorf("receiver name is required")
	}
	switch c.Logging.Output {
	case "", "stdout":
	case "file", "both":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging output %q needs file_path", c.Logging.Output)
		}
	default:
		return fmt.Errorf("unsupported logging output: %q", c.Logging.Output)
	}
	return nil
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		ft := t.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}
		key := ft.Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
