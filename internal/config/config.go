package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	Mode      string          `mapstructure:"mode"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
// Parameters: none.
// Returns:
//   - string: DSN for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RPS         float64       `mapstructure:"rps"`
	Burst       int           `mapstructure:"burst"`
	Temperature float64       `mapstructure:"temperature"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Stream        string `mapstructure:"stream"`
	DLQStream     string `mapstructure:"dlq_stream"`
	Group         string `mapstructure:"group"`
	Consumer      string `mapstructure:"consumer"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BufferSize    int    `mapstructure:"buffer_size"`
}

type AnalysisConfig struct {
	EngagementWeight float64 `mapstructure:"engagement_weight"`
	StructureWeight  float64 `mapstructure:"structure_weight"`
	MarketWeight     float64 `mapstructure:"market_weight"`
	NeutralScore     float64 `mapstructure:"neutral_score"`
	MaxOutputTokens  int     `mapstructure:"max_output_tokens"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UsePath   bool   `mapstructure:"use_path_style"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.rps", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/storyscope.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.rps", 4.0)
	v.SetDefault("llm.burst", 8)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
	v.SetDefault("queue.stream", "analysis_stages")
	v.SetDefault("queue.dlq_stream", "analysis_stages_dlq")
	v.SetDefault("queue.group", "analysis_workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.buffer_size", 512)
	v.SetDefault("analysis.engagement_weight", 0.35)
	v.SetDefault("analysis.structure_weight", 0.35)
	v.SetDefault("analysis.market_weight", 0.30)
	v.SetDefault("analysis.neutral_score", 50.0)
	v.SetDefault("analysis.max_output_tokens", 600)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.bucket", "storyscope-reports")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("queue.redis_addr", "REDIS_ADDR")
	v.BindEnv("queue.redis_password", "REDIS_PASSWORD")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("admin.token", "ADMIN_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
