package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"perspectives-watch/internal/configutil"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
)

const DefaultListingUrl = "https://class.perspectives.org/Visitor/SearchResult.aspx?strState=ca"

type StoreConfig struct {
	// sqlite, libsql or redis
	Driver string `json:"driver"`
	// a file path for sqlite, a libsql:// url for libsql
	Dsn string `json:"dsn"`
	// the table name, or the key prefix for redis
	Table        string `json:"table"`
	MaxBatchSize int    `json:"max_batch_size"`
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type NotifyConfig struct {
	// redis, email or log
	Sink string `json:"sink"`
	// the redis channel or the email address that notifications are published to
	Destination string     `json:"destination"`
	Smtp        SmtpConfig `json:"smtp"`
}

type Config struct {
	ListingUrl  string       `json:"listing_url"`
	Store       StoreConfig  `json:"store"`
	Notify      NotifyConfig `json:"notify"`
	RedisUrl    string       `json:"redis_url"`
	TriggerPort int          `json:"trigger_port"`
	LogLevel    string       `json:"log_level"`
	// when set, full http request/response dumps are written here at debug level
	HttpDumpDir string `json:"http_dump_dir"`
}

func defaults() Config {
	return Config{
		ListingUrl: DefaultListingUrl,
		Store: StoreConfig{
			Driver:       "sqlite",
			Dsn:          "perspectives.db",
			MaxBatchSize: 25,
		},
		Notify: NotifyConfig{
			Sink: "redis",
			Smtp: SmtpConfig{Port: 587},
		},
		RedisUrl:    "redis://localhost:6379/0",
		TriggerPort: 8080,
		LogLevel:    "info",
	}
}

// Load builds the configuration from, in increasing priority:
// built in defaults, `path` (plus its .local override) and the environment.
// A .env file in the working directory is loaded into the environment first
// if it exists. A missing config file is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		fileCfg, err := configutil.ReadConfig[Config](path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			// zero values in the file leave the defaults alone
			err = mergo.Merge(&cfg, fileCfg, mergo.WithOverride)
			if err != nil {
				return Config{}, fmt.Errorf("merge config: %w", err)
			}
		}
	}

	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	err = applyEnv(&cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"NOTIFY_DESTINATION": &cfg.Notify.Destination,
		"STORE_TABLE":        &cfg.Store.Table,
		"LISTING_URL":        &cfg.ListingUrl,
		"STORE_DRIVER":       &cfg.Store.Driver,
		"STORE_DSN":          &cfg.Store.Dsn,
		"SINK":               &cfg.Notify.Sink,
		"REDIS_URL":          &cfg.RedisUrl,
		"SMTP_SERVER":        &cfg.Notify.Smtp.Server,
		"SMTP_EMAIL_ADDRESS": &cfg.Notify.Smtp.EmailAddress,
		"SMTP_PASSWORD":      &cfg.Notify.Smtp.Password,
		"LOG_LEVEL":          &cfg.LogLevel,
		"HTTP_DUMP_DIR":      &cfg.HttpDumpDir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SMTP_PORT":            &cfg.Notify.Smtp.Port,
		"TRIGGER_PORT":         &cfg.TriggerPort,
		"STORE_MAX_BATCH_SIZE": &cfg.Store.MaxBatchSize,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks the values that an invocation cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.Notify.Destination == "" {
		errs = append(errs, errors.New("NOTIFY_DESTINATION is not set"))
	}
	if c.Store.Table == "" {
		errs = append(errs, errors.New("STORE_TABLE is not set"))
	}
	if c.ListingUrl == "" {
		errs = append(errs, errors.New("listing url is empty"))
	}
	if c.Store.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("max batch size must be positive, got %d", c.Store.MaxBatchSize))
	}
	switch c.Store.Driver {
	case "sqlite", "libsql", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Notify.Sink {
	case "redis", "email", "log":
	default:
		errs = append(errs, fmt.Errorf("unknown notification sink %q", c.Notify.Sink))
	}
	return errors.Join(errs...)
}
