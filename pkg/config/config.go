package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Simulator outputs
const (
	OutputStore = "store"
	OutputKafka = "kafka"
)

type Config struct {
	StoreBackend string
	Database     DatabaseConfig
	Redis        RedisConfig
	Mongo        MongoConfig
	Kafka        KafkaConfig
	Simulator    SimulatorConfig
	Dashboard    DashboardConfig
	Feed         FeedConfig
	Alert        AlertConfig
	SMTP         SMTPConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	StoreKey string
	MaxLen   int
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type KafkaConfig struct {
	Brokers        []string
	TopicTelemetry string
	TopicFrames    string
	TopicAlerts    string
	NumPartitions  int
}

type SimulatorConfig struct {
	TickPeriod time.Duration
	Locations  []string
	Output     string
	Seed       uint64
}

type DashboardConfig struct {
	WindowSize      int
	RefreshInterval time.Duration
	WaitInterval    time.Duration
	FlowBucket      time.Duration
	SpeedThreshold  float64
	Console         bool
	PublishFrames   bool
}

type FeedConfig struct {
	Enabled           bool
	Port              int
	MaxConnections    int
	IdentifyTimeout   time.Duration
	InactivityTimeout time.Duration
}

type AlertConfig struct {
	Enabled      bool
	HighDuration time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "traffic_user"),
			Password:      getEnv("DB_PASSWORD", "traffic_pass"),
			DBName:        getEnv("DB_NAME", "traffic_db"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			StoreKey: getEnv("REDIS_STORE_KEY", "traffic:records"),
			MaxLen:   getEnvAsInt("REDIS_STORE_MAX_LEN", 10000),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017/"),
			Database:   getEnv("MONGO_DB", "TrafficManagementDB"),
			Collection: getEnv("MONGO_COLLECTION", "RealTimeTraffic"),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicTelemetry: getEnv("KAFKA_TOPIC_TELEMETRY", "traffic.telemetry.raw"),
			TopicFrames:    getEnv("KAFKA_TOPIC_FRAMES", "traffic.dashboard.frames"),
			TopicAlerts:    getEnv("KAFKA_TOPIC_ALERTS", "traffic.alerts"),
			NumPartitions:  getEnvAsInt("KAFKA_NUM_PARTITIONS", 3),
		},
		Simulator: SimulatorConfig{
			TickPeriod: getEnvAsDuration("SIM_TICK_PERIOD", 3*time.Second),
			Locations:  getEnvAsList("SIM_LOCATIONS", traffic.DefaultLocations),
			Output:     strings.ToLower(getEnv("SIM_OUTPUT", OutputStore)),
			Seed:       uint64(getEnvAsInt("SIM_SEED", 0)),
		},
		Dashboard: DashboardConfig{
			WindowSize:      getEnvAsInt("DASH_WINDOW_SIZE", 500),
			RefreshInterval: getEnvAsDuration("DASH_REFRESH_INTERVAL", 3*time.Second),
			WaitInterval:    getEnvAsDuration("DASH_WAIT_INTERVAL", 2*time.Second),
			FlowBucket:      getEnvAsDuration("DASH_FLOW_BUCKET", 0),
			SpeedThreshold:  getEnvAsFloat("DASH_SPEED_THRESHOLD", 40),
			Console:         getEnvAsBool("DASH_CONSOLE", true),
			PublishFrames:   getEnvAsBool("DASH_PUBLISH_FRAMES", false),
		},
		Feed: FeedConfig{
			Enabled:           getEnvAsBool("FEED_ENABLED", false),
			Port:              getEnvAsInt("FEED_PORT", 8090),
			MaxConnections:    getEnvAsInt("FEED_MAX_CONNECTIONS", 100),
			IdentifyTimeout:   getEnvAsDuration("FEED_IDENTIFY_TIMEOUT", 10*time.Second),
			InactivityTimeout: getEnvAsDuration("FEED_INACTIVITY_TIMEOUT", 2*time.Minute),
		},
		Alert: AlertConfig{
			Enabled:      getEnvAsBool("ALERT_ENABLED", false),
			HighDuration: getEnvAsDuration("ALERT_HIGH_DURATION", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "traffic-monitor@example.com"),
			To:       getEnv("SMTP_TO", "ops@example.com"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the loops cannot run with
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendRedis, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.Simulator.Output {
	case OutputStore, OutputKafka:
	default:
		return fmt.Errorf("unknown SIM_OUTPUT %q", c.Simulator.Output)
	}

	if len(c.Simulator.Locations) == 0 {
		return fmt.Errorf("SIM_LOCATIONS must name at least one location")
	}
	if c.Simulator.TickPeriod <= 0 {
		return fmt.Errorf("SIM_TICK_PERIOD must be positive")
	}
	if c.Dashboard.WindowSize <= 0 {
		return fmt.Errorf("DASH_WINDOW_SIZE must be positive")
	}
	if c.Dashboard.RefreshInterval <= 0 || c.Dashboard.WaitInterval <= 0 {
		return fmt.Errorf("DASH_REFRESH_INTERVAL and DASH_WAIT_INTERVAL must be positive")
	}
	if c.Dashboard.FlowBucket < 0 {
		return fmt.Errorf("DASH_FLOW_BUCKET must not be negative")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must name at least one broker")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blank entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
