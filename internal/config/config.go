package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type DatabaseOptions struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"` // postgres or memory
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Name            string        `env:"DB_NAME" envDefault:"quickmatch"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.Name, d.Port,
	)
}

type QuickMatchOptions struct {
	RequestTTL     time.Duration `env:"REQUEST_TTL" envDefault:"120s"`
	CandidateLimit int           `env:"CANDIDATE_LIMIT" envDefault:"20"`
	MaxDistanceKm  float64       `env:"MAX_DISTANCE_KM" envDefault:"0"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	SweepBatch     int           `env:"SWEEP_BATCH" envDefault:"100"`
}

type RateLimitOptions struct {
	Enabled bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Rate    string `env:"RATE_LIMIT_REQUESTS" envDefault:"10-M"`
	Storage string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

type NotifyOptions struct {
	RedisRelay       bool          `env:"NOTIFY_REDIS_RELAY" envDefault:"false"`
	FirebaseCredFile string        `env:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	AMQPURL          string        `env:"RABBIT_URL"`
	AMQPExchange     string        `env:"RABBIT_EXCHANGE" envDefault:"quickmatch.events"`
	PublishTimeout   time.Duration `env:"NOTIFY_PUBLISH_TIMEOUT" envDefault:"2s"`
}

type StorageOptions struct {
	AWSRegion    string        `env:"AWS_REGION"`
	AWSAccessKey string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string        `env:"AWS_SECRET_ACCESS_KEY"`
	Bucket       string        `env:"AWS_S3_BUCKET"`
	PresignTTL   time.Duration `env:"LOGO_URL_TTL" envDefault:"15m"`
	BaseURL      string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
}

func (s *StorageOptions) UseS3() bool {
	return s.AWSRegion != "" && s.AWSAccessKey != "" && s.AWSSecretKey != "" && s.Bucket != ""
}

type Config struct {
	Database   DatabaseOptions
	QuickMatch QuickMatchOptions
	RateLimit  RateLimitOptions
	Notify     NotifyOptions
	Storage    StorageOptions

	RedisURL  string `env:"REDIS_URL" envDefault:"redis://redis:6379"`
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	GoAppEnv  string `env:"GO_APP_ENV" envDefault:"development"`

	// AdminAPIKey enables the operator endpoints when set.
	AdminAPIKey string `env:"ADMIN_API_KEY"`
}

// Load reads the given .env files (missing ones are skipped) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.QuickMatch.RequestTTL <= 0 {
		return fmt.Errorf("REQUEST_TTL must be positive, got %s", c.QuickMatch.RequestTTL)
	}
	if c.QuickMatch.CandidateLimit <= 0 {
		return fmt.Errorf("CANDIDATE_LIMIT must be positive, got %d", c.QuickMatch.CandidateLimit)
	}
	if c.QuickMatch.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.QuickMatch.SweepInterval)
	}
	if c.QuickMatch.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be positive, got %d", c.QuickMatch.SweepBatch)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("DB_DRIVER must be 'postgres' or 'memory', got '%s'", c.Database.Driver)
	}
	if c.RateLimit.Storage != "memory" && c.RateLimit.Storage != "redis" {
		return fmt.Errorf("RATE_LIMIT_STORAGE must be 'memory' or 'redis', got '%s'", c.RateLimit.Storage)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.GoAppEnv == "production"
}
