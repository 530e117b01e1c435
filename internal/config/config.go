package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"

	"tankwatch-chart/common/config"
)

// Reading sources and live transports.
const (
	SourcePostgres = "postgres"
	SourceREST     = "rest"

	TransportRedis = "redis"
	TransportMQTT  = "mqtt"
)

// Config chart sync service configuration
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`
	REST     config.RESTConfig     `yaml:"rest"`

	Chart struct {
		ReadingSource string `yaml:"reading_source"` // postgres | rest
		LiveTransport string `yaml:"live_transport"` // redis | mqtt
		LiveStream    string `yaml:"live_stream"`    // Redis stream of sensor_data changes
		LiveTopic     string `yaml:"live_topic"`     // MQTT topic of sensor_data changes

		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
		PostEventDelay    time.Duration `yaml:"post_event_delay"`
		LivenessTimeout   time.Duration `yaml:"liveness_timeout"`
		GapThreshold      time.Duration `yaml:"gap_threshold"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
		AlignBucket       time.Duration `yaml:"align_bucket"` // 0 = exact timestamps

		CommentFeed   bool          `yaml:"comment_feed"` // LISTEN comments_changes
		CacheRows     bool          `yaml:"cache_rows"`
		MetricsReport time.Duration `yaml:"metrics_report"`
		MaxViews      int           `yaml:"max_views"`
		DeviceRefresh time.Duration `yaml:"device_refresh"`
	} `yaml:"chart"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default configuration before file and environment overrides.
func Default() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "tankwatch"
	cfg.Database.SSLMode = "disable"

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "tankwatch-chart"
	cfg.MQTT.QoS = 1

	cfg.Chart.ReadingSource = SourcePostgres
	cfg.Chart.LiveTransport = TransportRedis
	cfg.Chart.LiveStream = "sensor_data:changes"
	cfg.Chart.LiveTopic = "tankwatch/sensor_data"
	cfg.Chart.ReconcileInterval = 2 * time.Minute
	cfg.Chart.PostEventDelay = time.Second
	cfg.Chart.LivenessTimeout = 3 * time.Minute
	cfg.Chart.GapThreshold = 10 * time.Minute
	cfg.Chart.RetryDelay = 10 * time.Second
	cfg.Chart.CommentFeed = true
	cfg.Chart.CacheRows = true
	cfg.Chart.MetricsReport = 60 * time.Second
	cfg.Chart.MaxViews = 64
	cfg.Chart.DeviceRefresh = 5 * time.Minute

	cfg.HTTP.Addr = ":8090"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

// Load builds the configuration: defaults, then the YAML file named by
// CHART_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CHART_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.REST.LoadFromEnv("SUPABASE")

	var err error
	cfg.Chart.ReadingSource = getEnv("READING_SOURCE", cfg.Chart.ReadingSource)
	cfg.Chart.LiveTransport = getEnv("LIVE_TRANSPORT", cfg.Chart.LiveTransport)
	cfg.Chart.LiveStream = getEnv("CHART_LIVE_STREAM", cfg.Chart.LiveStream)
	cfg.Chart.LiveTopic = getEnv("CHART_LIVE_TOPIC", cfg.Chart.LiveTopic)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHART_RECONCILE_INTERVAL", &cfg.Chart.ReconcileInterval},
		{"CHART_POST_EVENT_DELAY", &cfg.Chart.PostEventDelay},
		{"CHART_LIVENESS_TIMEOUT", &cfg.Chart.LivenessTimeout},
		{"CHART_GAP_THRESHOLD", &cfg.Chart.GapThreshold},
		{"CHART_RETRY_DELAY", &cfg.Chart.RetryDelay},
		{"CHART_ALIGN_BUCKET", &cfg.Chart.AlignBucket},
		{"CHART_METRICS_REPORT", &cfg.Chart.MetricsReport},
		{"CHART_DEVICE_REFRESH", &cfg.Chart.DeviceRefresh},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, *d.dst); err != nil {
			return nil, err
		}
	}

	cfg.Chart.CommentFeed = getEnv("CHART_COMMENT_FEED", strconv.FormatBool(cfg.Chart.CommentFeed)) == "true"
	cfg.Chart.CacheRows = getEnv("CHART_CACHE_ROWS", strconv.FormatBool(cfg.Chart.CacheRows)) == "true"
	if v, err := strconv.Atoi(getEnv("CHART_MAX_VIEWS", "")); err == nil && v > 0 {
		cfg.Chart.MaxViews = v
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and non-positive timings.
func (c *Config) Validate() error {
	switch c.Chart.ReadingSource {
	case SourcePostgres:
	case SourceREST:
		if c.REST.BaseURL == "" {
			return fmt.Errorf("reading source %q requires SUPABASE_URL", SourceREST)
		}
	default:
		return fmt.Errorf("unknown reading source %q", c.Chart.ReadingSource)
	}

	switch c.Chart.LiveTransport {
	case TransportRedis, TransportMQTT:
	default:
		return fmt.Errorf("unknown live transport %q", c.Chart.LiveTransport)
	}

	positive := map[string]time.Duration{
		"reconcile_interval": c.Chart.ReconcileInterval,
		"post_event_delay":   c.Chart.PostEventDelay,
		"liveness_timeout":   c.Chart.LivenessTimeout,
		"gap_threshold":      c.Chart.GapThreshold,
		"retry_delay":        c.Chart.RetryDelay,
		"metrics_report":     c.Chart.MetricsReport,
		"device_refresh":     c.Chart.DeviceRefresh,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("chart %s must be positive, got %s", name, d)
		}
	}
	if c.Chart.AlignBucket < 0 {
		return fmt.Errorf("chart align_bucket must not be negative, got %s", c.Chart.AlignBucket)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go ("90s") or ISO-8601 ("PT90S") durations.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	iso, err := duration.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %q", key, raw)
	}
	return iso.ToTimeDuration(), nil
}
