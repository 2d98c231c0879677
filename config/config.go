package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the indexing service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Indexing  IndexingConfig  `mapstructure:"indexing"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Query     QueryConfig     `mapstructure:"query"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// IndexingConfig controls how files are discovered, chunked and hashed.
type IndexingConfig struct {
	ChunkSize         int      `mapstructure:"chunk_size"`
	ChunkOverlap      int      `mapstructure:"chunk_overlap"`
	IncludeExtensions []string `mapstructure:"include_extensions"`
	ExcludeDirs       []string `mapstructure:"exclude_dirs"`
	MaxFileSizeBytes  int64    `mapstructure:"max_file_size_bytes"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	MaxFetchChars     int      `mapstructure:"max_fetch_chars"`
}

func (c IndexingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be > 0")
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("indexing.chunk_overlap must be >= 0")
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("indexing.max_file_size_bytes must be > 0")
	}
	return nil
}

// EmbeddingConfig defines the vector generator behaviour. Dimensions are baked
// into the pgvector column width at schema-creation time.
type EmbeddingConfig struct {
	Dimensions int `mapstructure:"dimensions"`
}

func (e EmbeddingConfig) Validate() error {
	if e.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	return nil
}

// QueryConfig controls retrieval defaults.
type QueryConfig struct {
	DefaultTopK   int `mapstructure:"default_top_k"`
	MaxTopK       int `mapstructure:"max_top_k"`
	SnippetLength int `mapstructure:"snippet_length"`
}

func (q QueryConfig) Validate() error {
	if q.DefaultTopK <= 0 {
		return fmt.Errorf("query.default_top_k must be > 0")
	}
	if q.MaxTopK < q.DefaultTopK {
		return fmt.Errorf("query.max_top_k must be >= query.default_top_k")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings (scheduler locks only).
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig controls periodic re-indexing of configured roots.
type SchedulerConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Schedule string   `mapstructure:"schedule"`
	Roots    []string `mapstructure:"roots"`
}

func (s SchedulerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Schedule) == "" {
		return fmt.Errorf("scheduler.schedule required when scheduler is enabled")
	}
	if len(s.Roots) == 0 {
		return fmt.Errorf("scheduler.roots required when scheduler is enabled")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":10030")
	viper.SetDefault("indexing.chunk_size", 400)
	viper.SetDefault("indexing.chunk_overlap", 80)
	viper.SetDefault("indexing.include_extensions", []string{".txt", ".md", ".go", ".py", ".rs", ".js", ".ts", ".json", ".yaml", ".yml", ".toml", ".html"})
	viper.SetDefault("indexing.exclude_dirs", []string{".git", "node_modules", "vendor", "dist", "build", "target", "__pycache__"})
	viper.SetDefault("indexing.max_file_size_bytes", 1048576)
	viper.SetDefault("indexing.fetch_timeout", "15s")
	viper.SetDefault("indexing.max_fetch_chars", 200000)
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("query.default_top_k", 5)
	viper.SetDefault("query.max_top_k", 50)
	viper.SetDefault("query.snippet_length", 240)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CORPUS")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Indexing.Validate(); err != nil {
		panic(err)
	}
	if err := config.Embedding.Validate(); err != nil {
		panic(err)
	}
	if err := config.Query.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Scheduler.Validate(); err != nil {
		panic(err)
	}
	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	return &config
}
