package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Server   Server
	Storage  Storage
	Redis    Redis
	RabbitMQ RabbitMQ
	Sweeper  Sweeper
	Log      Log
}

type Server struct {
	Addr        string
	CORSOrigins []string
}

type Storage struct {
	Driver        string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	QuizCacheTTL  time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQ struct {
	URI      string
	Exchange string
}

type Sweeper struct {
	Schedule     string
	Retention    time.Duration
	AbandonAfter time.Duration
	BatchSize    int
}

type Log struct {
	Level  string
	Pretty bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("STORAGE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "quiz.db")
	v.SetDefault("MONGO_DATABASE", "quiz_engine")
	v.SetDefault("QUIZ_CACHE_TTL", "5m")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RABBITMQ_EXCHANGE", "quiz-events")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("SWEEP_RETENTION", "24h")
	v.SetDefault("SWEEP_ABANDON_AFTER", "2h")
	v.SetDefault("SWEEP_BATCH", 500)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
}

// Load reads a .env file when one exists, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	cfg.Server.Addr = v.GetString("SERVER_ADDR")
	cfg.Server.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER")))
	cfg.Storage.SQLitePath = v.GetString("SQLITE_PATH")
	cfg.Storage.MongoURI = v.GetString("MONGO_URI")
	cfg.Storage.MongoDatabase = v.GetString("MONGO_DATABASE")
	cfg.Storage.QuizCacheTTL = v.GetDuration("QUIZ_CACHE_TTL")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.RabbitMQ.URI = v.GetString("RABBITMQ_URI")
	cfg.RabbitMQ.Exchange = v.GetString("RABBITMQ_EXCHANGE")

	cfg.Sweeper.Schedule = v.GetString("SWEEP_SCHEDULE")
	cfg.Sweeper.Retention = v.GetDuration("SWEEP_RETENTION")
	cfg.Sweeper.AbandonAfter = v.GetDuration("SWEEP_ABANDON_AFTER")
	cfg.Sweeper.BatchSize = v.GetInt("SWEEP_BATCH")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Pretty = v.GetBool("LOG_PRETTY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if strings.TrimSpace(c.Storage.MongoURI) == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Storage.QuizCacheTTL < 0 {
		errs = append(errs, errors.New("QUIZ_CACHE_TTL must not be negative"))
	}
	if c.Sweeper.Retention <= 0 {
		errs = append(errs, errors.New("SWEEP_RETENTION must be positive"))
	}
	if c.Sweeper.AbandonAfter < 0 {
		errs = append(errs, errors.New("SWEEP_ABANDON_AFTER must not be negative"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
