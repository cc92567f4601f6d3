package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// DonationBox Kiosk Configuration with Environment Overrides
// =============================================================================

type Config struct {
	App            AppConfig            `yaml:"app"`
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Hardware       HardwareConfig       `yaml:"hardware"`
	Correlation    CorrelationConfig    `yaml:"correlation"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the primary Postgres DSN and the secondary,
// non-transactional Supabase admin client credentials.
type DatabaseConfig struct {
	URL      string         `yaml:"url"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// HardwareConfig selects the C13 Source adapter and its pin wiring.
type HardwareConfig struct {
	Enabled    bool        `yaml:"enable_gpio"`
	PinFactory string      `yaml:"pin_factory"` // "mock", "null", or a native backend name
	Pins       PinsConfig  `yaml:"pins"`
	QueueSize  int         `yaml:"queue_size"`
}

type PinsConfig struct {
	CategoryButtons map[string]int `yaml:"category_buttons"` // button id -> GPIO pin
	CoinValidator   int            `yaml:"coin_validator"`
}

// CorrelationConfig holds the CorrelationEngine's timing and pulse-value
// tunables, defaulted exactly as spec.md §4.4 prescribes.
type CorrelationConfig struct {
	ButtonDebounceMS int            `yaml:"button_debounce_ms"`
	CoinDebounceMS   int            `yaml:"coin_debounce_ms"`
	TTLSeconds       int            `yaml:"ttl_seconds"`
	PulseToCents     map[int]int64  `yaml:"pulse_to_cents"`
	MinDonationCents int64          `yaml:"min_donation_cents"`
}

// CircuitBreakerConfig tunes the breaker wrapping DonationWriter's
// transaction. FailureRatioThreshold, when set above zero, switches
// ReadyToTrip from a plain consecutive-failure count to a failure-ratio
// rule (tripping once at least ConsecutiveFailures requests have been
// seen and the ratio of failures among them reaches the threshold) — a
// looser rule for a noisier database than a fixed streak count tolerates.
type CircuitBreakerConfig struct {
	ConsecutiveFailures   int     `yaml:"consecutive_failures"`
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	FailureRatioThreshold float64 `yaml:"failure_ratio_threshold"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading config.yaml and .env
// on first call.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}

		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever was loaded from YAML, then fills in defaults.
func (c *Config) applyEnvOverrides() {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Debug = getEnvBool("DEBUG", c.App.Debug)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = parseAllowedOrigins(origins)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Supabase.URL = getEnv("SUPABASE_URL", c.Database.Supabase.URL)
	c.Database.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Database.Supabase.ServiceKey)

	c.Hardware.Enabled = getEnvBool("ENABLE_GPIO", c.Hardware.Enabled)
	c.Hardware.PinFactory = getEnv("PIN_FACTORY", c.Hardware.PinFactory)
	if v := getEnvInt("COIN_VALIDATOR_PIN", 0); v > 0 {
		c.Hardware.Pins.CoinValidator = v
	}
	if v := getEnvInt("HARDWARE_QUEUE_SIZE", 0); v > 0 {
		c.Hardware.QueueSize = v
	}

	if v := getEnvInt("BUTTON_DEBOUNCE_MS", 0); v > 0 {
		c.Correlation.ButtonDebounceMS = v
	}
	if v := getEnvInt("COIN_DEBOUNCE_MS", 0); v > 0 {
		c.Correlation.CoinDebounceMS = v
	}
	if v := getEnvInt("CORRELATION_TTL_SECONDS", 0); v > 0 {
		c.Correlation.TTLSeconds = v
	}
	if v := getEnvInt("MIN_DONATION_CENTS", 0); v > 0 {
		c.Correlation.MinDonationCents = int64(v)
	}

	if v := getEnvInt("CIRCUIT_BREAKER_CONSECUTIVE_FAILURES", 0); v > 0 {
		c.CircuitBreaker.ConsecutiveFailures = v
	}
	if v := getEnvInt("CIRCUIT_BREAKER_TIMEOUT_SECONDS", 0); v > 0 {
		c.CircuitBreaker.TimeoutSeconds = v
	}
	if v := getEnvFloat("CIRCUIT_BREAKER_FAILURE_RATIO", 0); v > 0 {
		c.CircuitBreaker.FailureRatioThreshold = v
	}

	c.applyDefaults()
}

// applyDefaults sets the spec-mandated defaults for zero-valued fields.
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "donationbox"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Hardware.PinFactory == "" {
		c.Hardware.PinFactory = "mock"
	}
	if c.Hardware.QueueSize == 0 {
		c.Hardware.QueueSize = 100
	}
	if c.Hardware.Pins.CategoryButtons == nil {
		c.Hardware.Pins.CategoryButtons = map[string]int{}
	}

	if c.Correlation.ButtonDebounceMS == 0 {
		c.Correlation.ButtonDebounceMS = 2000
	}
	if c.Correlation.CoinDebounceMS == 0 {
		c.Correlation.CoinDebounceMS = 2000
	}
	if c.Correlation.TTLSeconds == 0 {
		c.Correlation.TTLSeconds = 30
	}
	if c.Correlation.MinDonationCents == 0 {
		c.Correlation.MinDonationCents = 1
	}
	if len(c.Correlation.PulseToCents) == 0 {
		c.Correlation.PulseToCents = map[int]int64{
			1: 10,
			2: 20,
			3: 50,
			4: 100,
			5: 200,
		}
	}

	if c.CircuitBreaker.ConsecutiveFailures == 0 {
		c.CircuitBreaker.ConsecutiveFailures = 3
	}
	if c.CircuitBreaker.TimeoutSeconds == 0 {
		c.CircuitBreaker.TimeoutSeconds = 10
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// parseAllowedOrigins accepts ALLOWED_ORIGINS as a bare "*", a comma-list,
// or a JSON array, per spec. A value starting with "[" is parsed as JSON
// first; anything that fails to parse falls back to comma-splitting so a
// near-miss value still resolves to something rather than nothing.
func parseAllowedOrigins(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(trimmed), &origins); err == nil {
			return origins
		}
		slog.Warn("config: ALLOWED_ORIGINS looked like JSON but failed to parse, falling back to comma-split", "value", raw)
	}
	return splitCSV(trimmed)
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}

// GetSupabaseURL returns the Supabase REST URL for the secondary admin client.
func (c *Config) GetSupabaseURL() string {
	return c.Database.Supabase.URL
}

// GetSupabaseKey returns the Supabase service key for the secondary admin client.
func (c *Config) GetSupabaseKey() string {
	return c.Database.Supabase.ServiceKey
}
