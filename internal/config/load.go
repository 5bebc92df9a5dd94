package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional configs/<name>.env
// file and the environment, in that order of precedence
func Load(name string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(name)
	v.SetConfigType("env")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Env:         v.GetString("APP_ENV"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		},
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:           v.GetString("DB_HOST"),
			Port:           v.GetString("DB_PORT"),
			User:           v.GetString("DB_USER"),
			Password:       v.GetString("DB_PASSWORD"),
			DBName:         v.GetString("DB_NAME"),
			SSLMode:        v.GetString("DB_SSLMODE"),
			MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
			MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("KAFKA_ENABLED"),
			Brokers:      splitList(v.GetString("KAFKA_BROKERS")),
			EventsTopic:  v.GetString("KAFKA_EVENTS_TOPIC"),
			WriteTimeout: v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		},
		Mongo: MongoConfig{
			Enabled:  v.GetBool("MONGO_ENABLED"),
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
			Timeout:  v.GetDuration("MONGO_TIMEOUT"),
		},
		Engine: EngineConfig{
			CandidatePoolSize: v.GetInt("CANDIDATE_POOL_SIZE"),
			LockTimeout:       v.GetDuration("LOCK_TIMEOUT"),
			OperationTimeout:  v.GetDuration("OPERATION_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "remittance_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_PATH", "migrations/postgres")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "reconciliation_events")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", 10*time.Second)

	v.SetDefault("MONGO_ENABLED", false)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "remittance_review")
	v.SetDefault("MONGO_TIMEOUT", 10*time.Second)

	v.SetDefault("CANDIDATE_POOL_SIZE", 4)
	v.SetDefault("LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("OPERATION_TIMEOUT", 30*time.Second)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
