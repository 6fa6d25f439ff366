package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the daemon configuration.
type Config struct {
	// Environment is the logical queue identity recorded into new job
	// rows, normally supplied through SRCF_JOB_QUEUE.
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Database    DBConfig      `toml:"database"`
	MySQL       MySQLConfig   `toml:"mysql"`
	Mail        MailConfig    `toml:"mail"`
	Runner      RunnerConfig  `toml:"runner"`
	Hosts       HostsConfig   `toml:"hosts"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	// Hostname overrides platform hostname detection for the host guard
	// (useful in containers).
	Hostname string `toml:"hostname"`
}

// DBConfig points at the PostgreSQL entity/job store.
type DBConfig struct {
	DSN string `toml:"dsn"` // e.g. "postgres://sysadmins@postgres.internal/sysadmins"
}

// MySQLConfig points at the MySQL server administered for users.
type MySQLConfig struct {
	DefaultsFile string `toml:"defaults_file"` // .my.cnf with [client] user/password
	Host         string `toml:"host"`
	Database     string `toml:"database"`
}

type MailConfig struct {
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	// Sysadmins is the (name, address) pair copied on most mail and the
	// default Reply-To.
	SysadminsName  string `toml:"sysadmins_name"`
	SysadminsEmail string `toml:"sysadmins_email"`
	SupportEmail   string `toml:"support_email"`
	// RatePerMinute throttles outbound mail; 0 disables the limiter.
	RatePerMinute int `toml:"rate_per_minute"`
	// Suppress logs intended mail instead of sending it (dry runs).
	Suppress bool `toml:"suppress"`
}

type RunnerConfig struct {
	// WakeInterval bounds the notification wait so the queue is
	// re-polled even if a NOTIFY is lost.
	WakeInterval time.Duration `toml:"wake_interval"`
	// NISWait is the pause after NIS propagation before touching files
	// owned by a freshly created uid/gid over NFS.
	NISWait time.Duration `toml:"nis_wait"`
	// MaintenanceSchedule is a cron expression for the daily digest of
	// jobs stuck in unapproved or running.
	MaintenanceSchedule string `toml:"maintenance_schedule"`
}

// HostsConfig names the machines allowed to run host-bound plumbing.
type HostsConfig struct {
	User string `toml:"user"`
	List string `toml:"list"`
	Web  string `toml:"web"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// NewDefaultConfig returns the built-in defaults, overridden by files,
// environment and flags in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Database: DBConfig{
			DSN: "postgres:///sysadmins?host=postgres.internal",
		},
		MySQL: MySQLConfig{
			DefaultsFile: "/societies/srcf-admin/.my.cnf",
			Host:         "mysql.internal",
			Database:     "srcf_admin",
		},
		Mail: MailConfig{
			SMTPHost:       "localhost",
			SMTPPort:       25,
			SysadminsName:  "SRCF Sysadmins",
			SysadminsEmail: "soc-srcf-admin@lists.cam.ac.uk",
			SupportEmail:   "support@srcf.net",
			RatePerMinute:  60,
		},
		Runner: RunnerConfig{
			WakeInterval:        600 * time.Second,
			NISWait:             16 * time.Second,
			MaintenanceSchedule: "0 8 * * *",
		},
		Hosts: HostsConfig{
			User: "pip",
			List: "pip",
			Web:  "sinkhole",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration from TOML files in order; later
// files override earlier ones, and environment variables override all
// files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SRCF_JOB_QUEUE"); env != "" {
		config.Environment = env
	}
	if dsn := os.Getenv("WARDEN_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if path := os.Getenv("WARDEN_MYSQL_DEFAULTS_FILE"); path != "" {
		config.MySQL.DefaultsFile = path
	}
	if host := os.Getenv("WARDEN_SMTP_HOST"); host != "" {
		config.Mail.SMTPHost = host
	}
	if port := os.Getenv("WARDEN_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mail.SMTPPort = p
		}
	}
	if suppress := os.Getenv("WARDEN_MAIL_SUPPRESS"); suppress != "" {
		config.Mail.Suppress = suppress == "true" || suppress == "1"
	}
	if wake := os.Getenv("WARDEN_RUNNER_WAKE_INTERVAL"); wake != "" {
		if d, err := time.ParseDuration(wake); err == nil {
			config.Runner.WakeInterval = d
		}
	}
	if level := os.Getenv("WARDEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
