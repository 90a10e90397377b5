package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"grillbook/internal/codegen"
	"grillbook/internal/models"
	"grillbook/internal/timeutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	API          APIConfig          `yaml:"api"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Cancellation CancellationConfig `yaml:"cancellation"`
	Email        EmailConfig        `yaml:"email"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Apartments   []string           `yaml:"apartments"`
	Exports      ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// PublicURL is used in emails and share links.
	PublicURL string `yaml:"public_url"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

// APIGRPCConfig controls the gRPC health endpoint. Port 0 disables it.
type APIGRPCConfig struct {
	Port          int           `yaml:"port"`
	Reflection    bool          `yaml:"reflection"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string      `yaml:"trusted_proxies"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
}

// Networks parses TrustedProxies. A bare IP is treated as a single-host network.
func (c APIRateLimitConfig) Networks() ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 8 * net.IPv4len
			}
			networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		networks = append(networks, network)
	}
	return networks, nil
}

type ScheduleConfig struct {
	Open             string `yaml:"open"`
	Close            string `yaml:"close"`
	SlotMinutes      int    `yaml:"slot_minutes"`
	MaxDurationHours int    `yaml:"max_duration_hours"`
	Timezone         string `yaml:"timezone"`
	UpcomingDays     int    `yaml:"upcoming_days"`
}

// Location resolves Timezone, falling back to the process local zone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

func (s ScheduleConfig) OpenOffset() (time.Duration, error)  { return timeutil.ParseClock(s.Open) }
func (s ScheduleConfig) CloseOffset() (time.Duration, error) { return timeutil.ParseClock(s.Close) }

func (s ScheduleConfig) Granularity() time.Duration {
	return time.Duration(s.SlotMinutes) * time.Minute
}

func (s ScheduleConfig) MaxDuration() time.Duration {
	return time.Duration(s.MaxDurationHours) * time.Hour
}

type CancellationConfig struct {
	CodeLength int `yaml:"code_length"`
	// MaxAttempts of zero disables attempt limiting.
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
}

type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether real delivery is configured; otherwise sends are simulated.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.From != ""
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if c.Database.Postgres.DSN == "" {
			return errors.New("postgres dsn is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if err := c.Schedule.validate(); err != nil {
		return err
	}

	if c.API.GRPC.Port != 0 && c.API.GRPC.Port == c.API.HTTP.Port {
		return fmt.Errorf("grpc port %d collides with http port", c.API.GRPC.Port)
	}
	if _, err := c.API.RateLimit.Networks(); err != nil {
		return err
	}

	if c.Cancellation.CodeLength < codegen.MinLength || c.Cancellation.CodeLength > codegen.MaxLength {
		return fmt.Errorf("cancellation code length must be between %d and %d", codegen.MinLength, codegen.MaxLength)
	}
	if c.Cancellation.MaxAttempts < 0 {
		return errors.New("cancellation max_attempts must not be negative")
	}

	return ValidateApartments(c.Apartments)
}

func (s ScheduleConfig) validate() error {
	open, err := s.OpenOffset()
	if err != nil {
		return fmt.Errorf("schedule open: %w", err)
	}
	closing, err := s.CloseOffset()
	if err != nil {
		return fmt.Errorf("schedule close: %w", err)
	}
	if closing <= open {
		return fmt.Errorf("schedule close %s must be after open %s", s.Close, s.Open)
	}
	if s.SlotMinutes <= 0 || s.SlotMinutes > 24*60 {
		return fmt.Errorf("invalid slot_minutes %d", s.SlotMinutes)
	}
	if s.MaxDuration() < s.Granularity() {
		return errors.New("max_duration_hours must cover at least one slot")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

func ValidateApartments(apartments []string) error {
	if len(apartments) == 0 {
		return errors.New("at least one apartment is required")
	}
	seen := make(map[string]bool)
	for _, a := range apartments {
		if strings.TrimSpace(a) == "" {
			return errors.New("apartment name must not be empty")
		}
		if seen[a] {
			return fmt.Errorf("duplicate apartment found: %s", a)
		}
		seen[a] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "grillbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverPostgres && c.Database.Postgres.MaxConnections == 0 {
		c.Database.Postgres.MaxConnections = 10
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.API.RateLimit.IdleTTL == 0 {
		c.API.RateLimit.IdleTTL = 10 * time.Minute
	}
	if c.API.GRPC.Port != 0 && c.API.GRPC.ProbeInterval == 0 {
		c.API.GRPC.ProbeInterval = 15 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Schedule.Open == "" {
		c.Schedule.Open = models.DefaultOpenTime
	}
	if c.Schedule.Close == "" {
		c.Schedule.Close = models.DefaultCloseTime
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = models.DefaultSlotMinutes
	}
	if c.Schedule.MaxDurationHours == 0 {
		c.Schedule.MaxDurationHours = models.DefaultMaxDurationHours
	}
	if c.Schedule.UpcomingDays == 0 {
		c.Schedule.UpcomingDays = models.DefaultUpcomingDays
	}

	if c.Cancellation.CodeLength == 0 {
		c.Cancellation.CodeLength = models.DefaultCodeLength
	}
	if c.Cancellation.MaxAttempts > 0 && c.Cancellation.AttemptWindow == 0 {
		c.Cancellation.AttemptWindow = 15 * time.Minute
	}

	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if len(c.Apartments) == 0 {
		c.Apartments = append([]string(nil), models.DefaultApartments...)
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
