package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Mongo    MongoConfig
	Engine   EngineConfig
}

type AppConfig struct {
	Env         string
	LogLevel    string
	StoreDriver string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	EventsTopic  string
	WriteTimeout time.Duration
}

type MongoConfig struct {
	Enabled  bool
	URI      string
	Database string
	Timeout  time.Duration
}

// EngineConfig tunes the reconciliation core
type EngineConfig struct {
	CandidatePoolSize int           // workers running per-kind candidate queries
	LockTimeout       time.Duration // wait for a bank transaction or remittance lock
	OperationTimeout  time.Duration // upper bound for one exposed operation
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL renders the connection as a postgres:// URL, the form the migration
// runner expects
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func (c *Config) validate() error {
	var problems []string

	if c.Server.Port == "" {
		problems = append(problems, "SERVER_PORT is required")
	}
	if c.Server.ReadTimeout <= 0 {
		problems = append(problems, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		problems = append(problems, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}

	switch c.App.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.Host == "" {
			problems = append(problems, "DB_HOST is required")
		}
		if c.Database.DBName == "" {
			problems = append(problems, "DB_NAME is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			problems = append(problems, "DB_MAX_OPEN_CONNS must be greater than 0")
		}
	case StoreDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "KAFKA_BROKERS is required when KAFKA_ENABLED")
		}
		if c.Kafka.EventsTopic == "" {
			problems = append(problems, "KAFKA_EVENTS_TOPIC is required when KAFKA_ENABLED")
		}
	}

	if c.Mongo.Enabled {
		if c.Mongo.URI == "" {
			problems = append(problems, "MONGO_URI is required when MONGO_ENABLED")
		}
		if c.Mongo.Database == "" {
			problems = append(problems, "MONGO_DATABASE is required when MONGO_ENABLED")
		}
	}

	if c.Engine.CandidatePoolSize <= 0 {
		problems = append(problems, "CANDIDATE_POOL_SIZE must be greater than 0")
	}
	if c.Engine.LockTimeout <= 0 {
		problems = append(problems, "LOCK_TIMEOUT must be greater than 0")
	}
	if c.Engine.OperationTimeout <= 0 {
		problems = append(problems, "OPERATION_TIMEOUT must be greater than 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, ", "))
	}
	return nil
}
