package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/logger"
)

// Runtime configuration keys as exposed by the config API
const (
	KeyMinDiscount      = "MIN_DISCOUNT_PERCENTAGE"
	KeyProductKeywords  = "PRODUCT_KEYWORDS"
	KeyScrapeInterval   = "SCRAPE_INTERVAL"
	KeyDestinations     = "NOTIFICATION_DESTINATIONS"
	KeyDestinationAlias = "WHATSAPP_PHONE_NUMBERS"
	KeyTargetURL        = "TARGET_URL"
	KeyDebugMode        = "DEBUG_MODE"
)

// MinScrapeInterval is the shortest allowed pause between cycles
const MinScrapeInterval = 5 * time.Second

// RuntimeConfig is the set of options that may change while the worker runs.
// Values handed out by RuntimeStore are copies.
type RuntimeConfig struct {
	MinDiscountPercentage int
	ProductKeywords       []string
	ScrapeInterval        time.Duration
	Destinations          []string
	TargetURL             string
	DebugMode             bool
}

type runtimeConfigJSON struct {
	MinDiscountPercentage int      `json:"MIN_DISCOUNT_PERCENTAGE"`
	ProductKeywords       []string `json:"PRODUCT_KEYWORDS"`
	ScrapeInterval        int64    `json:"SCRAPE_INTERVAL"`
	Destinations          []string `json:"NOTIFICATION_DESTINATIONS"`
	TargetURL             string   `json:"TARGET_URL"`
	DebugMode             bool     `json:"DEBUG_MODE"`
}

// MarshalJSON writes the API representation, with SCRAPE_INTERVAL in ms
func (c RuntimeConfig) MarshalJSON() ([]byte, error) {
	keywords := c.ProductKeywords
	if keywords == nil {
		keywords = []string{}
	}
	destinations := c.Destinations
	if destinations == nil {
		destinations = []string{}
	}
	return json.Marshal(runtimeConfigJSON{
		MinDiscountPercentage: c.MinDiscountPercentage,
		ProductKeywords:       keywords,
		ScrapeInterval:        c.ScrapeInterval.Milliseconds(),
		Destinations:          destinations,
		TargetURL:             c.TargetURL,
		DebugMode:             c.DebugMode,
	})
}

// UnmarshalJSON reads the API representation
func (c *RuntimeConfig) UnmarshalJSON(data []byte) error {
	var raw runtimeConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = RuntimeConfig{
		MinDiscountPercentage: raw.MinDiscountPercentage,
		ProductKeywords:       raw.ProductKeywords,
		ScrapeInterval:        time.Duration(raw.ScrapeInterval) * time.Millisecond,
		Destinations:          raw.Destinations,
		TargetURL:             raw.TargetURL,
		DebugMode:             raw.DebugMode,
	}
	return nil
}

func (c RuntimeConfig) clone() RuntimeConfig {
	c.ProductKeywords = append([]string(nil), c.ProductKeywords...)
	c.Destinations = append([]string(nil), c.Destinations...)
	return c
}

// Result reports the outcome of a runtime configuration change
type Result struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Config  *RuntimeConfig    `json:"config,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ChangeFunc is called after a successful change with the old and new values
type ChangeFunc func(old, updated RuntimeConfig)

// RuntimeStore holds the live RuntimeConfig. Readers take snapshots, so a
// change made mid-cycle is seen by the next cycle.
type RuntimeStore struct {
	mu        sync.RWMutex
	current   RuntimeConfig
	defaults  RuntimeConfig
	listeners []ChangeFunc
	log       *logger.Logger
}

// NewRuntimeStore creates a store seeded with defaults; Reset returns to them
func NewRuntimeStore(defaults RuntimeConfig) *RuntimeStore {
	return &RuntimeStore{
		current:  defaults.clone(),
		defaults: defaults.clone(),
		log:      logger.ForComponent("config"),
	}
}

// OnChange registers fn to run after every successful update or reset
func (s *RuntimeStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current configuration
func (s *RuntimeStore) Snapshot() RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update validates and applies a single key. The store is left unchanged
// when validation fails.
func (s *RuntimeStore) Update(key string, value interface{}) Result {
	s.mu.Lock()
	old := s.current.clone()
	msg, err := s.apply(key, value)
	if err != nil {
		s.mu.Unlock()
		return Result{Success: false, Message: err.Error()}
	}
	updated := s.current.clone()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info().Str("key", key).Msg(msg)
	notify(listeners, old, updated)

	return Result{
		Success: true,
		Message: fmt.Sprintf("Successfully updated %s", key),
		Config:  &updated,
	}
}

// UpdateBatch applies every key independently, in sorted order, and collects
// per-key errors. It succeeds when at least one key was applied or nothing
// failed. The destinations alias is rejected when the primary key is present.
func (s *RuntimeStore) UpdateBatch(updates map[string]interface{}) Result {
	keys := make([]string, 0, len(updates))
	hasDestinations := false
	for key := range updates {
		keys = append(keys, key)
		if normalizeKey(key) == KeyDestinations {
			hasDestinations = true
		}
	}
	sort.Strings(keys)

	s.mu.Lock()
	old := s.current.clone()
	errs := make(map[string]string)
	applied := 0
	for _, key := range keys {
		if hasDestinations && normalizeKey(key) == KeyDestinationAlias {
			errs[key] = fmt.Sprintf("%s conflicts with %s", KeyDestinationAlias, KeyDestinations)
			continue
		}
		msg, err := s.apply(key, updates[key])
		if err != nil {
			errs[key] = err.Error()
			continue
		}
		applied++
		s.log.Info().Str("key", key).Msg(msg)
	}
	updated := s.current.clone()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	if applied > 0 {
		notify(listeners, old, updated)
	}

	if len(errs) > 0 {
		return Result{
			Success: applied > 0,
			Message: fmt.Sprintf("Updated %d config value(s) with %d error(s)", applied, len(errs)),
			Config:  &updated,
			Errors:  errs,
		}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Successfully updated %d config value(s)", applied),
		Config:  &updated,
	}
}

// Reset restores the startup configuration
func (s *RuntimeStore) Reset() RuntimeConfig {
	s.mu.Lock()
	old := s.current.clone()
	s.current = s.defaults.clone()
	updated := s.current.clone()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info().Msg("Runtime configuration reset to environment defaults")
	notify(listeners, old, updated)
	return updated
}

func notify(listeners []ChangeFunc, old, updated RuntimeConfig) {
	for _, fn := range listeners {
		fn(old, updated)
	}
}

// apply must be called with s.mu held
func (s *RuntimeStore) apply(key string, value interface{}) (string, error) {
	switch normalizeKey(key) {
	case KeyMinDiscount:
		n, ok := toInt(value)
		if !ok || n < 0 || n > 100 {
			return "", fmt.Errorf("%s must be a number between 0 and 100", KeyMinDiscount)
		}
		msg := fmt.Sprintf("Updated %s: %d%% -> %d%%", KeyMinDiscount, s.current.MinDiscountPercentage, n)
		s.current.MinDiscountPercentage = n
		return msg, nil

	case KeyScrapeInterval:
		n, ok := toInt(value)
		if !ok || int64(n) > maxIntervalMillis || time.Duration(n)*time.Millisecond < MinScrapeInterval {
			return "", fmt.Errorf("%s must be a number >= 5000 (ms)", KeyScrapeInterval)
		}
		interval := time.Duration(n) * time.Millisecond
		msg := fmt.Sprintf("Updated %s: %s -> %s", KeyScrapeInterval, s.current.ScrapeInterval, interval)
		s.current.ScrapeInterval = interval
		return msg, nil

	case KeyProductKeywords:
		keywords, ok := toList(value)
		if !ok {
			return "", fmt.Errorf("%s must be an array or comma-separated string", KeyProductKeywords)
		}
		s.current.ProductKeywords = keywords
		return fmt.Sprintf("Updated %s: [%s]", KeyProductKeywords, strings.Join(keywords, ", ")), nil

	case KeyDestinations, KeyDestinationAlias:
		destinations, ok := toList(value)
		if !ok {
			return "", fmt.Errorf("%s must be an array or comma-separated string", KeyDestinations)
		}
		if len(destinations) == 0 {
			return "", fmt.Errorf("at least one destination is required")
		}
		s.current.Destinations = destinations
		return fmt.Sprintf("Updated %s (%d destinations)", KeyDestinations, len(destinations)), nil

	case KeyTargetURL:
		str, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%s must be a valid HTTP/HTTPS URL", KeyTargetURL)
		}
		str = strings.TrimSpace(str)
		if _, err := validateTargetURL(str); err != nil {
			return "", fmt.Errorf("%s must be a valid HTTP/HTTPS URL", KeyTargetURL)
		}
		msg := fmt.Sprintf("Updated %s: %s -> %s", KeyTargetURL, s.current.TargetURL, str)
		s.current.TargetURL = str
		return msg, nil

	case KeyDebugMode:
		enabled := toDebugFlag(value)
		msg := fmt.Sprintf("Updated %s: %t -> %t", KeyDebugMode, s.current.DebugMode, enabled)
		s.current.DebugMode = enabled
		return msg, nil

	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// maxIntervalMillis is the largest interval that fits in a time.Duration
const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return floatToInt(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return floatToInt(f)
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

func toList(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case string:
		return helpers.SplitList(v), true
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func toDebugFlag(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(v)
		return s == "true" || s == "1"
	default:
		return false
	}
}
