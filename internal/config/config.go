package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	DefaultPort            = 8080
	DefaultPublicBaseURL   = "http://localhost:8080"
	DefaultUploadDir       = "./uploads"
	DefaultMaxUploadBytes  = 100 * 1024 * 1024
	DefaultStoreDriver     = DriverMongo
	DefaultMongoURI        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "blog"
	DefaultMongoCollection = "blogs"
	DefaultSQLitePath      = "./goblog.db"
	DefaultCacheTTL        = 5 * time.Minute
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 5 * time.Second

	DefaultEnvFile = ".env"
)

var (
	DefaultAllowedMIMETypes = []string{
		"model/gltf-binary",
		"model/vnd.usdz+zip",
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	}
	DefaultAllowedExtensions = []string{".glb", ".usdz", ".jpg", ".jpeg", ".png", ".gif", ".webp"}
)

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type StoreConfig struct {
	Driver     string      `yaml:"driver"`
	Mongo      MongoConfig `yaml:"mongo"`
	SQLitePath string      `yaml:"sqlite_path"`
}

// CacheConfig enables the Redis post cache when RedisAddr is set
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

type UploadConfig struct {
	Dir               string   `yaml:"dir"`
	StoragePrefix     string   `yaml:"storage_prefix"`
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedMIMETypes  []string `yaml:"allowed_mime_types"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Config defines runtime configuration for the server.
type Config struct {
	Port               int           `yaml:"port"`
	PublicBaseURL      string        `yaml:"public_base_url"`
	Uploads            UploadConfig  `yaml:"uploads"`
	Store              StoreConfig   `yaml:"store"`
	Cache              CacheConfig   `yaml:"cache"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Port:          DefaultPort,
		PublicBaseURL: DefaultPublicBaseURL,
		Uploads: UploadConfig{
			Dir:               DefaultUploadDir,
			MaxBytes:          DefaultMaxUploadBytes,
			AllowedMIMETypes:  append([]string(nil), DefaultAllowedMIMETypes...),
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
			Mongo: MongoConfig{
				URI:        DefaultMongoURI,
				Database:   DefaultMongoDatabase,
				Collection: DefaultMongoCollection,
			},
			SQLitePath: DefaultSQLitePath,
		},
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
		},
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load builds a Config from defaults, then the YAML file at path (if any),
// then the env files, then the process environment. Later sources win.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	env, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// readEnvFiles merges dotenv files without touching the process environment.
// Missing files are skipped.
func readEnvFiles(files []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", f, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}
	return merged, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	str("UPLOAD_DIR", &cfg.Uploads.Dir)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("MONGO_URI", &cfg.Store.Mongo.URI)
	str("MONGO_DATABASE", &cfg.Store.Mongo.Database)
	str("MONGO_COLLECTION", &cfg.Store.Mongo.Collection)
	str("SQLITE_DB_PATH", &cfg.Store.SQLitePath)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	list("ALLOWED_MIME_TYPES", &cfg.Uploads.AllowedMIMETypes)
	list("ALLOWED_EXTENSIONS", &cfg.Uploads.AllowedExtensions)
	list("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)

	// an empty prefix is meaningful, so presence alone overrides
	if v, ok := lookup("STORAGE_PREFIX"); ok {
		cfg.Uploads.StoragePrefix = strings.TrimSpace(v)
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		cfg.Uploads.MaxBytes = n
	}

	for key, dst := range map[string]*time.Duration{
		"CACHE_TTL":        &cfg.Cache.TTL,
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q (want %q or %q)", c.Store.Driver, DriverMongo, DriverSQLite)
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("invalid public base URL %q: %w", c.PublicBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid public base URL %q: must be an absolute http(s) URL", c.PublicBaseURL)
	}

	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.Uploads.MaxBytes)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format %q (want json or console)", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}

	return nil
}

// CacheEnabled reports whether a Redis address was configured
func (c *Config) CacheEnabled() bool {
	return c.Cache.RedisAddr != ""
}
