package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/kelseyhightower/envconfig"

	dbconfig "hotreload/pkg/database"
	"hotreload/pkg/types"
)

// EnvPrefix prefixes every environment variable, e.g. HOTRELOAD_HTTP_PORT.
const EnvPrefix = "HOTRELOAD"

var ErrInvalidConfig = errors.New("invalid configuration")

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Watcher   *WatcherConfig   `json:"watcher"`
	Client    *ClientConfig    `json:"client"`
}

// DatabaseConfig locates the preference store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration for the development server
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Root         string        `json:"root"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// WebSocketConfig tunes the server side heartbeat.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
}

// WatcherConfig tunes change batching.
type WatcherConfig struct {
	Batch time.Duration `json:"batch"`
}

// ClientConfig tunes the reload client.
type ClientConfig struct {
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	DebounceBase   time.Duration `json:"debounce_base"`
	DebounceMax    time.Duration `json:"debounce_max"`
	FetchTimeout   time.Duration `json:"fetch_timeout"`
	CancelInFlight bool          `json:"cancel_in_flight"`
	CacheBustParam string        `json:"cache_bust_param"`
	Output         string        `json:"output"`

	// Replace swaps the whole document on page reloads instead of morphing it.
	Replace bool `json:"replace"`
}

// FUNCTIONAL DISCOVERY: Defaults mirror the browser client: 1s reconnect, 32ms debounce
// doubling to a 1s cap, 16ms watcher batch
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path: dbconfig.DefaultDatabasePath(),
		},
		HTTP: &HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			Root:         ".",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Watcher: &WatcherConfig{
			Batch: 16 * time.Millisecond,
		},
		Client: &ClientConfig{
			ReconnectDelay: time.Second,
			DebounceBase:   32 * time.Millisecond,
			DebounceMax:    time.Second,
			FetchTimeout:   30 * time.Second,
			CancelInFlight: true,
			CacheBustParam: types.CacheBustParam,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Watcher == nil || c.Client == nil {
		return fmt.Errorf("%w: every section is required", ErrInvalidConfig)
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Database.Path != "", "database path cannot be empty"},
		{c.HTTP.Host != "", "HTTP host cannot be empty"},
		{c.HTTP.Port >= 0 && c.HTTP.Port <= 65535, "HTTP port must be between 0 and 65535"},
		{c.HTTP.Root != "", "HTTP root cannot be empty"},
		{c.HTTP.ReadTimeout > 0, "HTTP read timeout must be positive"},
		{c.HTTP.WriteTimeout > 0, "HTTP write timeout must be positive"},
		{c.WebSocket.PingInterval > 0, "WebSocket ping interval must be positive"},
		{c.WebSocket.ReadTimeout > c.WebSocket.PingInterval, "WebSocket read timeout must exceed the ping interval"},
		{c.Watcher.Batch > 0, "watcher batch must be positive"},
		{c.Client.ReconnectDelay > 0, "reconnect delay must be positive"},
		{c.Client.DebounceBase > 0, "debounce base must be positive"},
		{c.Client.DebounceMax >= c.Client.DebounceBase, "debounce cap cannot be below the base"},
		{c.Client.FetchTimeout > 0, "fetch timeout must be positive"},
		{c.Client.CacheBustParam != "", "cache-bust parameter cannot be empty"},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.msg)
		}
	}
	return nil
}

// envSpec lists every environment override. Pointers stay nil when the
// variable is unset so only present values override.
type envSpec struct {
	DatabasePath *string `envconfig:"DATABASE_PATH"`

	HTTPHost         *string        `envconfig:"HTTP_HOST"`
	HTTPPort         *int           `envconfig:"HTTP_PORT"`
	HTTPRoot         *string        `envconfig:"HTTP_ROOT"`
	HTTPReadTimeout  *time.Duration `envconfig:"HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout *time.Duration `envconfig:"HTTP_WRITE_TIMEOUT"`

	WebSocketPingInterval *time.Duration `envconfig:"WEBSOCKET_PING_INTERVAL"`
	WebSocketReadTimeout  *time.Duration `envconfig:"WEBSOCKET_READ_TIMEOUT"`

	WatcherBatch *time.Duration `envconfig:"WATCHER_BATCH"`

	ReconnectDelay *time.Duration `envconfig:"RECONNECT_DELAY"`
	DebounceBase   *time.Duration `envconfig:"DEBOUNCE_BASE"`
	DebounceMax    *time.Duration `envconfig:"DEBOUNCE_MAX"`
	FetchTimeout   *time.Duration `envconfig:"FETCH_TIMEOUT"`
	CancelInFlight *bool          `envconfig:"CANCEL_IN_FLIGHT"`
	CacheBustParam *string        `envconfig:"CACHE_BUST_PARAM"`
	Output         *string        `envconfig:"OUTPUT"`
	Replace        *bool          `envconfig:"REPLACE"`
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables per-shell overrides
// without touching project files
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays HOTRELOAD_* variables onto config.
func ApplyEnv(config *Config) error {
	var spec envSpec
	if err := envconfig.Process(EnvPrefix, &spec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	set(&config.Database.Path, spec.DatabasePath)
	set(&config.HTTP.Host, spec.HTTPHost)
	set(&config.HTTP.Port, spec.HTTPPort)
	set(&config.HTTP.Root, spec.HTTPRoot)
	set(&config.HTTP.ReadTimeout, spec.HTTPReadTimeout)
	set(&config.HTTP.WriteTimeout, spec.HTTPWriteTimeout)
	set(&config.WebSocket.PingInterval, spec.WebSocketPingInterval)
	set(&config.WebSocket.ReadTimeout, spec.WebSocketReadTimeout)
	set(&config.Watcher.Batch, spec.WatcherBatch)
	set(&config.Client.ReconnectDelay, spec.ReconnectDelay)
	set(&config.Client.DebounceBase, spec.DebounceBase)
	set(&config.Client.DebounceMax, spec.DebounceMax)
	set(&config.Client.FetchTimeout, spec.FetchTimeout)
	set(&config.Client.CancelInFlight, spec.CancelInFlight)
	set(&config.Client.CacheBustParam, spec.CacheBustParam)
	set(&config.Client.Output, spec.Output)
	set(&config.Client.Replace, spec.Replace)
	return nil
}

// ConfigFile represents the file structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for parsing to handle duration strings
type ConfigFile struct {
	Database *struct {
		Path string `json:"path"`
	} `json:"database"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		Root         string `json:"root"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
	} `json:"websocket"`
	Watcher *struct {
		Batch string `json:"batch"`
	} `json:"watcher"`
	Client *struct {
		ReconnectDelay string `json:"reconnect_delay"`
		DebounceBase   string `json:"debounce_base"`
		DebounceMax    string `json:"debounce_max"`
		FetchTimeout   string `json:"fetch_timeout"`
		CancelInFlight *bool  `json:"cancel_in_flight"`
		CacheBustParam string `json:"cache_bust_param"`
		Output         string `json:"output"`
		Replace        *bool  `json:"replace"`
	} `json:"client"`
}

// FUNCTIONAL DISCOVERY: File-based configuration accepts YAML or JSON, JSON being a YAML subset
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := ApplyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// ApplyFile overlays the values present in path onto config.
func ApplyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: failed to parse config file %s: %v", ErrInvalidConfig, path, err)
	}

	var errs []error
	duration := func(dst *time.Duration, value, name string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = d
	}
	text := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}

	if f := file.Database; f != nil {
		text(&config.Database.Path, f.Path)
	}
	if f := file.HTTP; f != nil {
		text(&config.HTTP.Host, f.Host)
		text(&config.HTTP.Root, f.Root)
		if f.Port != 0 {
			config.HTTP.Port = f.Port
		}
		duration(&config.HTTP.ReadTimeout, f.ReadTimeout, "http.read_timeout")
		duration(&config.HTTP.WriteTimeout, f.WriteTimeout, "http.write_timeout")
	}
	if f := file.WebSocket; f != nil {
		duration(&config.WebSocket.PingInterval, f.PingInterval, "websocket.ping_interval")
		duration(&config.WebSocket.ReadTimeout, f.ReadTimeout, "websocket.read_timeout")
	}
	if f := file.Watcher; f != nil {
		duration(&config.Watcher.Batch, f.Batch, "watcher.batch")
	}
	if f := file.Client; f != nil {
		duration(&config.Client.ReconnectDelay, f.ReconnectDelay, "client.reconnect_delay")
		duration(&config.Client.DebounceBase, f.DebounceBase, "client.debounce_base")
		duration(&config.Client.DebounceMax, f.DebounceMax, "client.debounce_max")
		duration(&config.Client.FetchTimeout, f.FetchTimeout, "client.fetch_timeout")
		set(&config.Client.CancelInFlight, f.CancelInFlight)
		text(&config.Client.CacheBustParam, f.CacheBustParam)
		text(&config.Client.Output, f.Output)
		set(&config.Client.Replace, f.Replace)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: defaults < environment < file;
// command-line flags are applied on top by the caller
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := ApplyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func set[T any](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}
