package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/pkg/errors"
)

// Browser drivers
const (
	BrowserDriverRod  = "rod"
	BrowserDriverHTTP = "http"
)

// Messaging drivers
const (
	MessagingDriverRedis = "redis"
	MessagingDriverLog   = "log"
)

// Config represents the application configuration
type Config struct {
	// Scrape target and filter rules, used to seed the runtime store
	TargetURL             string
	ScrapeInterval        time.Duration
	MinDiscountPercentage int
	ProductKeywords       []string
	Destinations          []string
	DebugMode             bool

	// HTTP API
	ServerPort     int
	AllowedOrigins []string
	APIRateLimit   float64

	// Browser
	BrowserDriver string
	BrowserBin    string
	BrowserProxy  string

	// Messaging
	MessagingDriver      string
	NotifyOnStart        bool
	RedisAddr            string
	RedisDB              int
	RedisPassword        string
	RedisStreamPrefix    string
	RedisStreamMaxLength int64

	// Memcache configuration; empty keeps the cooldown cache in memory
	MemcacheAddr string

	// Worker tuning
	DedupRetention  time.Duration
	RecycleEvery    int
	DedupSweepEvery int
	ImageMaxBytes   int64
	ImageTimeout    time.Duration
	SendDelay       time.Duration
	CurrencySymbol  string
	HeartbeatCron   string

	// Environment
	Environment  string
	ErrorLogFile string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	destinations := getEnv("NOTIFICATION_DESTINATIONS", os.Getenv("WHATSAPP_PHONE_NUMBER"))

	return &Config{
		TargetURL:             getEnv("TARGET_URL", "https://roobai.com/"),
		ScrapeInterval:        getEnvMillis("SCRAPE_INTERVAL", 30*time.Second),
		MinDiscountPercentage: getEnvInt("MIN_DISCOUNT_PERCENTAGE", 80),
		ProductKeywords:       helpers.SplitList(getEnv("PRODUCT_KEYWORDS", "")),
		Destinations:          helpers.SplitList(destinations),
		DebugMode:             getEnvBool("DEBUG_MODE", false),

		ServerPort:     getEnvInt("SERVER_PORT", 8080),
		AllowedOrigins: helpers.SplitList(getEnv("ALLOWED_ORIGINS", "*")),
		APIRateLimit:   getEnvFloat("API_RATE_LIMIT", 5),

		BrowserDriver: strings.ToLower(getEnv("BROWSER_DRIVER", BrowserDriverRod)),
		BrowserBin:    getEnv("BROWSER_BIN", ""),
		BrowserProxy:  getEnv("BROWSER_PROXY", ""),

		MessagingDriver:      strings.ToLower(getEnv("MESSAGING_DRIVER", MessagingDriverRedis)),
		NotifyOnStart:        getEnvBool("NOTIFY_ON_START", getEnvBool("WHATSAPP_NOTIFICATION_START", false)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisStreamPrefix:    getEnv("REDIS_STREAM_PREFIX", "dealalert"),
		RedisStreamMaxLength: getEnvInt64("REDIS_STREAM_MAX_LENGTH", 1000),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),

		DedupRetention:  getEnvDuration("DEDUP_RETENTION", 4*time.Hour),
		RecycleEvery:    getEnvInt("RECYCLE_EVERY", 100),
		DedupSweepEvery: getEnvInt("DEDUP_SWEEP_EVERY", 10),
		ImageMaxBytes:   getEnvInt64("IMAGE_MAX_BYTES", 2*1024*1024),
		ImageTimeout:    getEnvDuration("IMAGE_TIMEOUT", 10*time.Second),
		SendDelay:       getEnvDuration("SEND_DELAY", 1500*time.Millisecond),
		CurrencySymbol:  getEnv("CURRENCY_SYMBOL", "₹"),
		HeartbeatCron:   getEnv("HEARTBEAT_CRON", ""),

		Environment:  getEnv("DEAL_ENVIRONMENT", "development"),
		ErrorLogFile: getEnv("ERROR_LOG_FILE", ""),
	}
}

// Validate rejects startup values the worker cannot run with
func (c *Config) Validate() error {
	if _, err := validateTargetURL(c.TargetURL); err != nil {
		return errors.NewConfiguration("invalid TARGET_URL", err)
	}
	if c.ScrapeInterval < MinScrapeInterval {
		return errors.NewConfiguration("SCRAPE_INTERVAL must be at least 5000ms", nil)
	}
	if c.MinDiscountPercentage < 0 || c.MinDiscountPercentage > 100 {
		return errors.NewConfiguration("MIN_DISCOUNT_PERCENTAGE must be between 0 and 100", nil)
	}
	if len(c.Destinations) == 0 {
		return errors.NewConfiguration("NOTIFICATION_DESTINATIONS must list at least one destination", nil)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return errors.NewConfiguration("SERVER_PORT out of range", nil)
	}
	switch c.BrowserDriver {
	case BrowserDriverRod, BrowserDriverHTTP:
	default:
		return errors.NewConfiguration("unknown BROWSER_DRIVER "+c.BrowserDriver, nil)
	}
	if c.BrowserProxy != "" {
		if u, err := url.Parse(c.BrowserProxy); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.NewConfiguration("invalid BROWSER_PROXY "+c.BrowserProxy, err)
		}
	}
	switch c.MessagingDriver {
	case MessagingDriverRedis, MessagingDriverLog:
	default:
		return errors.NewConfiguration("unknown MESSAGING_DRIVER "+c.MessagingDriver, nil)
	}
	if c.RecycleEvery <= 0 || c.DedupSweepEvery <= 0 {
		return errors.NewConfiguration("RECYCLE_EVERY and DEDUP_SWEEP_EVERY must be positive", nil)
	}
	if c.ImageMaxBytes <= 0 {
		return errors.NewConfiguration("IMAGE_MAX_BYTES must be positive", nil)
	}
	return nil
}

// IsProduction reports whether DEAL_ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RuntimeDefaults returns the runtime configuration seeded from the environment
func (c *Config) RuntimeDefaults() RuntimeConfig {
	return RuntimeConfig{
		MinDiscountPercentage: c.MinDiscountPercentage,
		ProductKeywords:       append([]string(nil), c.ProductKeywords...),
		ScrapeInterval:        c.ScrapeInterval,
		Destinations:          append([]string(nil), c.Destinations...),
		TargetURL:             c.TargetURL,
		DebugMode:             c.DebugMode,
	}
}

func validateTargetURL(raw string) (*url.URL, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return nil, errors.NewValidation("config", "TARGET_URL must start with http:// or https://")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.NewValidation("config", "TARGET_URL has no host")
	}
	return u, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMillis reads a plain millisecond count, falling back to a Go
// duration string.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
