package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/clinicdesk/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	LogLevel  string
	LogFormat string

	// APIURL is the bill API base URL used by the REST client.
	APIURL        string
	ClientTimeout time.Duration
	OperatorID    string

	SnowflakeNode int64
	SeedDemoData  bool

	// ClinicName heads printed receipts.
	ClinicName string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

// TelemetryConfig carries the OTLP exporter settings and the database
// slow-query threshold logged by the gorm logger.
type TelemetryConfig struct {
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64

	SlowQuery time.Duration
}

// RateLimitConfig guards bill writes with redis. Disabled by default.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// BillWriteRate is tokens per second per client for bill writes.
	BillWriteRate  float64
	BillWriteBurst int

	// BillLockTTLSeconds bounds how long one payment may hold a bill.
	BillLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	return Config{
		AppName:           getenv("APP_SERVICE", "clinicdesk"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		APIURL:            strings.TrimSpace(getenv("CLINICDESK_API_URL", "http://localhost:8080")),
		ClientTimeout:     time.Duration(getenvInt64("CLINICDESK_API_TIMEOUT_SECONDS", 12)) * time.Second,
		OperatorID:        strings.TrimSpace(getenv("CLINICDESK_OPERATOR_ID", "")),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		SeedDemoData:      getenvBool("SEED_DEMO_DATA", environment != "production"),
		ClinicName:        getenv("CLINIC_NAME", "ClinicDesk"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "clinicdesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		Telemetry: TelemetryConfig{
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
			OtlpProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat64("OTEL_SAMPLING_RATIO", 0.1),
			SlowQuery:     time.Duration(getenvInt64("DATABASE_SLOW_QUERY_MS", 200)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:      getenv("REDIS_PASSWORD", ""),
			RedisDB:            int(getenvInt64("REDIS_DB", 0)),
			BillWriteRate:      getenvFloat64("BILL_WRITE_RATE", 2),
			BillWriteBurst:     int(getenvInt64("BILL_WRITE_BURST", 10)),
			BillLockTTLSeconds: int(getenvInt64("BILL_LOCK_TTL_SECONDS", 15)),
		},
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Database returns the connection settings for pkg/db.
func (c Config) Database() db.Config {
	return db.Config{
		Type:            c.DBType,
		Host:            c.DBHost,
		Port:            c.DBPort,
		Name:            c.DBName,
		User:            c.DBUser,
		Password:        c.DBPassword,
		SSLMode:         c.DBSSLMode,
		MaxIdleConn:     c.DBMaxIdleConn,
		MaxOpenConn:     c.DBMaxOpenConn,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat64(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
