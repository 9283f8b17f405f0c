package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Device    DeviceConfig
	Server    ServerConfig
	Transport TransportConfig
	MQTT      MQTTConfig
	Redis     RedisConfig
	Download  DownloadConfig
	Heartbeat HeartbeatConfig
	Log       LogConfig
	WorkDir   string
}

// DeviceConfig holds the identity of this endpoint and its screen
type DeviceConfig struct {
	ClientID    string // may list several ids separated by commas
	Framebuffer string
	ProfilePath string // optional YAML display profile
	DryRun      bool   // draw into memory instead of the device
	PlayerBin   string
}

// ServerConfig holds the content server and the local status API settings
type ServerConfig struct {
	URLRoot         string
	InsecureTLS     bool
	StatusAddr      string
	ReadTimeout     int
	WriteTimeout    int
	SystemInfoRetry int
}

// TransportConfig selects the command transport
type TransportConfig struct {
	Kind string // mqtt or redis
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	Broker   string // host:port; resolved from system info when empty
	Username string
	Password string
	QoS      int
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DownloadConfig holds download manager settings
type DownloadConfig struct {
	Dir            string
	MaxRetries     int
	RangeWorkers   int
	ConnectTimeout int
	ReadTimeout    int
}

// HeartbeatConfig holds heartbeat settings
type HeartbeatConfig struct {
	Kind string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	workDir := getEnv("EPLAYER_DIR", "/data/")

	cfg := &Config{
		Device: DeviceConfig{
			ClientID:    getEnv("CLIENT_ID", "6A10000000FF"),
			Framebuffer: getEnv("FB_DEVICE", "/dev/fb0"),
			ProfilePath: getEnv("DISPLAY_PROFILE", ""),
			DryRun:      getEnvAsBool("DRY_RUN", false),
			PlayerBin:   getEnv("PLAYER_BIN", "gst-launch-1.0"),
		},
		Server: ServerConfig{
			URLRoot:         getEnv("SERVER_URL", "http://127.0.0.1:8000/"),
			InsecureTLS:     getEnvAsBool("SERVER_INSECURE_TLS", false),
			StatusAddr:      getEnv("STATUS_ADDR", ":8080"),
			ReadTimeout:     getEnvAsInt("STATUS_READ_TIMEOUT", 10),
			WriteTimeout:    getEnvAsInt("STATUS_WRITE_TIMEOUT", 10),
			SystemInfoRetry: getEnvAsInt("SYSTEM_INFO_RETRY", 10),
		},
		Transport: TransportConfig{
			Kind: strings.ToLower(getEnv("TRANSPORT", "mqtt")),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			Username: getEnv("MQTT_USERNAME", "LCD"),
			Password: getEnv("MQTT_PASSWORD", ""),
			QoS:      getEnvAsInt("MQTT_QOS", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Download: DownloadConfig{
			Dir:            filepath.Join(workDir, "download"),
			MaxRetries:     getEnvAsInt("DOWNLOAD_MAX_RETRIES", 5),
			RangeWorkers:   getEnvAsInt("DOWNLOAD_RANGE_WORKERS", 4),
			ConnectTimeout: getEnvAsInt("DOWNLOAD_CONNECT_TIMEOUT", 10),
			ReadTimeout:    getEnvAsInt("DOWNLOAD_READ_TIMEOUT", 30),
		},
		Heartbeat: HeartbeatConfig{
			Kind: getEnv("HEARTBEAT_KIND", "wifibssid"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 7),
		},
		WorkDir: workDir,
	}

	return cfg, nil
}

// TaskDir is where playlists and task ids are persisted
func (c *Config) TaskDir() string {
	return filepath.Join(c.WorkDir, "task")
}

// DisplayID is the id of the locally owned display: the first
// comma-separated element of the client id.
func (d DeviceConfig) DisplayID() string {
	id, _, _ := strings.Cut(d.ClientID, ",")
	return strings.TrimSpace(id)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
