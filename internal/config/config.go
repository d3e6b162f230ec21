package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AgriSmart server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Disease  DiseaseConfig
	IFS      IFSConfig
	Geocode  GeocodeConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	APIKeyHash        string
	RequestsPerMinute int
	MaxUploadBytes    int64
	AdapterTimeout    time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL selects the in-process cache.
type RedisConfig struct {
	URL string
}

type DiseaseConfig struct {
	Backend     string
	ModelPath   string
	ClassesPath string
	InputSize   int
	MaxPixels   int
	Threads     int
	TFServing   TFServingConfig
}

type TFServingConfig struct {
	BaseURL   string
	ModelName string
	Timeout   time.Duration
}

type IFSConfig struct {
	CSVPath string
}

type GeocodeConfig struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	RegionSuffix string
	Timeout      time.Duration
	RatePerSec   float64
	CacheTTL     time.Duration
}

const (
	DefaultDatabaseURL = "sqlite://agrismart.db"
	DefaultIFSCSVPath  = "data/ifs_tn.csv"
)

// DefaultGeocode returns the Nominatim settings used when no GEOCODE_*
// variable overrides them. Nominatim's usage policy allows one request per
// second and requires an identifying User-Agent.
func DefaultGeocode() GeocodeConfig {
	return GeocodeConfig{
		BaseURL:      "https://nominatim.openstreetmap.org",
		UserAgent:    "agrismart/1.0 (ifs recommender)",
		CountryCodes: "in",
		RegionSuffix: "Tamil Nadu, India",
		Timeout:      15 * time.Second,
		RatePerSec:   1,
		CacheTTL:     24 * time.Hour,
	}
}

var validBackends = map[string]bool{
	"tflite":    true,
	"tfserving": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	geo := DefaultGeocode()
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("AGRISMART_PORT", 8000),
			Env:               envString("AGRISMART_ENV", "development"),
			APIKeyHash:        os.Getenv("AGRISMART_API_KEY_HASH"),
			RequestsPerMinute: envInt("AGRISMART_RATE_LIMIT_RPM", 60),
			MaxUploadBytes:    int64(envInt("AGRISMART_MAX_UPLOAD_BYTES", 10<<20)),
			AdapterTimeout:    envDuration("AGRISMART_ADAPTER_TIMEOUT", 0),
		},
		Database: DatabaseConfig{
			URL:             envString("DATABASE_URL", DefaultDatabaseURL),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Disease: DiseaseConfig{
			Backend:     envString("DISEASE_BACKEND", "tflite"),
			ModelPath:   envString("DISEASE_MODEL_PATH", "models/plant_disease.tflite"),
			ClassesPath: envString("DISEASE_CLASSES_PATH", "models/classes.txt"),
			InputSize:   envInt("DISEASE_INPUT_SIZE", 224),
			MaxPixels:   envInt("DISEASE_MAX_PIXELS", 40_000_000),
			Threads:     envInt("DISEASE_THREADS", 0),
			TFServing: TFServingConfig{
				BaseURL:   envString("TFSERVING_BASE_URL", "http://localhost:8501"),
				ModelName: envString("TFSERVING_MODEL", "plant_disease"),
				Timeout:   envDurationSecs("TFSERVING_TIMEOUT_SECS", 30*time.Second),
			},
		},
		IFS: IFSConfig{
			CSVPath: envString("IFS_CSV_PATH", DefaultIFSCSVPath),
		},
		Geocode: GeocodeConfig{
			BaseURL:      envString("GEOCODE_BASE_URL", geo.BaseURL),
			UserAgent:    envString("GEOCODE_USER_AGENT", geo.UserAgent),
			CountryCodes: envString("GEOCODE_COUNTRY_CODES", geo.CountryCodes),
			RegionSuffix: envString("GEOCODE_REGION_SUFFIX", geo.RegionSuffix),
			Timeout:      envDurationSecs("GEOCODE_TIMEOUT_SECS", geo.Timeout),
			RatePerSec:   envFloat("GEOCODE_RATE_PER_SEC", geo.RatePerSec),
			CacheTTL:     envDuration("GEOCODE_CACHE_TTL", geo.CacheTTL),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := DatabaseScheme(c.Database.URL); err != nil {
		return err
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if !validBackends[c.Disease.Backend] {
		return fmt.Errorf("DISEASE_BACKEND must be one of tflite, tfserving; got %q", c.Disease.Backend)
	}
	if c.Disease.Backend == "tfserving" && !isHTTPURL(c.Disease.TFServing.BaseURL) {
		return fmt.Errorf("TFSERVING_BASE_URL must start with http:// or https://, got %q", c.Disease.TFServing.BaseURL)
	}
	if c.Disease.InputSize <= 0 {
		return fmt.Errorf("DISEASE_INPUT_SIZE must be positive, got %d", c.Disease.InputSize)
	}

	if c.Disease.MaxPixels <= 0 {
		return fmt.Errorf("DISEASE_MAX_PIXELS must be positive, got %d", c.Disease.MaxPixels)
	}

	if c.IFS.CSVPath == "" {
		return fmt.Errorf("IFS_CSV_PATH is required")
	}

	if !isHTTPURL(c.Geocode.BaseURL) {
		return fmt.Errorf("GEOCODE_BASE_URL must start with http:// or https://, got %q", c.Geocode.BaseURL)
	}
	if c.Geocode.RatePerSec <= 0 {
		return fmt.Errorf("GEOCODE_RATE_PER_SEC must be positive, got %v", c.Geocode.RatePerSec)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("AGRISMART_MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	return nil
}

// DatabaseScheme returns the storage backend named by a DATABASE_URL:
// "postgres", "mysql" or "sqlite".
func DatabaseScheme(url string) (string, error) {
	switch {
	case url == "":
		return "", fmt.Errorf("DATABASE_URL is required")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", nil
	case strings.HasPrefix(url, "mysql://"):
		return "mysql", nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return "sqlite", nil
	default:
		return "", fmt.Errorf("DATABASE_URL must start with postgres://, postgresql://, mysql://, sqlite:// or file:; got %q", url)
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
