package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port" validate:"min=1,max=65535"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver" validate:"oneof=mysql postgres memory"`
		Host     string `yaml:"host" validate:"required_unless=Driver memory"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name" validate:"required_unless=Driver memory"`
		SSLMode  string `yaml:"sslmode"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint" validate:"required_if=Enabled true"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName" validate:"required_if=Enabled true"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Scan struct {
		Concurrency int      `yaml:"concurrency" validate:"min=1,max=64"`
		RuleTimeout Duration `yaml:"ruleTimeout"`
		Deadline    Duration `yaml:"deadline"`
	} `yaml:"scan"`

	Auth struct {
		// tenant -> API key
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		RPS   float64 `yaml:"rps" validate:"gte=0"`
		Burst int     `yaml:"burst" validate:"gte=0"`
	} `yaml:"rateLimit"`

	Log struct {
		Level string `yaml:"level" validate:"oneof=debug info warn error"`
	} `yaml:"log"`
}

// Duration accepts "10s" style strings in yaml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

var validate = validator.New()

// Load reads an optional .env, the yaml file at path (missing file is fine when the
// environment carries everything), then applies INTEGRITY_* overrides and defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = 5432
		case "mysql":
			c.Database.Port = 3306
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Scan.Concurrency == 0 {
		c.Scan.Concurrency = 4
	}
	if c.Scan.RuleTimeout.Duration <= 0 {
		c.Scan.RuleTimeout.Duration = 10 * time.Second
	}
	if c.Scan.Deadline.Duration <= 0 {
		c.Scan.Deadline.Duration = 2 * time.Minute
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnv lets secrets and deploy-specific values come from the environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("INTEGRITY_DB_DRIVER", &c.Database.Driver)
	str("INTEGRITY_DB_HOST", &c.Database.Host)
	str("INTEGRITY_DB_USER", &c.Database.User)
	str("INTEGRITY_DB_PASSWORD", &c.Database.Password)
	str("INTEGRITY_DB_NAME", &c.Database.Name)
	str("INTEGRITY_DB_SSLMODE", &c.Database.SSLMode)
	str("INTEGRITY_MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("INTEGRITY_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("INTEGRITY_LOG_LEVEL", &c.Log.Level)

	if v := getenv("INTEGRITY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INTEGRITY_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := getenv("INTEGRITY_DB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INTEGRITY_DB_PORT: %w", err)
		}
		c.Database.Port = p
	}
	// INTEGRITY_API_KEYS="tenant-a=key1,tenant-b=key2"
	if v := getenv("INTEGRITY_API_KEYS"); v != "" {
		keys := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			tenant, key, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || tenant == "" || key == "" {
				return fmt.Errorf("INTEGRITY_API_KEYS: malformed entry %q", pair)
			}
			keys[tenant] = key
		}
		c.Auth.APIKeys = keys
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL DSN.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
