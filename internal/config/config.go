package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir       string
	BandManifest  string
	RegionCatalog string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Analysis defaults, overridable per request.
	NDSIThreshold   float64
	NIRThreshold    float64
	PixelResolution float64
	ClipAllTouched  bool
	StackWorkers    int

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Session retention. An empty SessionDir keeps sessions in memory.
	SessionDir           string
	SessionMaxAge        time.Duration
	SessionMaxEntries    int
	SessionSweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. Variables from ENV_FILE (default .env) are loaded first without
// overriding the real environment.
func Load() (*Config, error) {
	if err := godotenv.Load(sharedcfg.EnvOrDefault("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       sharedcfg.EnvOrDefault("DATA_DIR", "Data"),
		BandManifest:  os.Getenv("BAND_MANIFEST"),
		RegionCatalog: os.Getenv("REGION_CATALOG"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "snow-analysis-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "snow-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "snowsense"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken: os.Getenv("MAPBOX_TOKEN"),
		SessionDir:  os.Getenv("SESSION_DIR"),
	}

	p := parser{}
	cfg.NDSIThreshold = p.float("NDSI_THRESHOLD", 0.4, -1, 1)
	cfg.NIRThreshold = p.float("NIR_THRESHOLD", 0.3, 0, 1)
	cfg.PixelResolution = p.float("PIXEL_RESOLUTION", 10, math.SmallestNonzeroFloat64, math.MaxFloat64)
	cfg.ClipAllTouched = p.bool("CLIP_ALL_TOUCHED", false)
	cfg.StackWorkers = p.int("STACK_WORKERS", 4, 1)
	cfg.KafkaEnabled = p.bool("KAFKA_ENABLED", false)
	cfg.MapboxEnabled = p.bool("MAPBOX_ENABLED", cfg.MapboxToken != "")
	cfg.MapboxTimeout = p.duration("MAPBOX_TIMEOUT", 5*time.Second)
	cfg.MapboxCacheSize = p.int("MAPBOX_CACHE_SIZE", 1000, 1)
	cfg.SessionMaxAge = p.duration("SESSION_MAX_AGE", time.Hour)
	cfg.SessionMaxEntries = p.int("SESSION_MAX_ENTRIES", 100, 1)
	cfg.SessionSweepInterval = p.duration("SESSION_SWEEP_INTERVAL", time.Minute)
	if p.err != nil {
		return nil, p.err
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: must be %s", key, want)
	}
}

func (p *parser) float(key string, def, lo, hi float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < lo || v > hi {
		if lo == math.SmallestNonzeroFloat64 {
			p.fail(key, "a positive number")
		} else {
			p.fail(key, fmt.Sprintf("a number in [%g, %g]", lo, hi))
		}
		return def
	}
	return v
}

func (p *parser) int(key string, def, lo int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo {
		p.fail(key, fmt.Sprintf("an integer >= %d", lo))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, "true or false")
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(key, "a positive duration")
		return def
	}
	return d
}
