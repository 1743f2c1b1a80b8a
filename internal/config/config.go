package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env        string
	LogLevel   string
	ServerPort string `validate:"required,numeric"`
	// FrontendURLs are the UI origins admitted by the bridge.
	FrontendURLs []string

	APIBaseURL   string `validate:"required,url"`
	APIPrefix    string
	MediaBaseURL string `validate:"required,url"`
	SocketURL    string `validate:"required,url"`
	PushProtocol string `validate:"oneof=socketio socketio2 websocket"`

	ReadTimeout    time.Duration `validate:"gt=0"`
	SendTimeout    time.Duration `validate:"gtfield=ReadTimeout"`
	MaxRetries     int           `validate:"gte=0,lte=10"`
	RetryDelay     time.Duration `validate:"gte=0"`
	RefetchDelay   time.Duration `validate:"gte=0"`
	ReconnectDelay time.Duration `validate:"gt=0"`

	RecorderCommand   string
	RecorderTypes     []string `validate:"dive,required"`
	RecorderTimeslice time.Duration

	RedisURL string
	RedisTTL time.Duration

	MinioURL      string
	MinioUser     string
	MinioPassword string
	MinioBucket   string
	MaxFileSize   int64 `validate:"gt=0"`
}

func LoadConfig() Config {
	apiBase := strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/")

	return Config{
		Env:        getEnv("ENV", "dev"),
		LogLevel:   getEnv("LOG_LEVEL", ""),
		ServerPort: getEnv("SERVER_PORT", "8090"),
		FrontendURLs: getEnvAsList("FRONTEND_URL", []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}),

		APIBaseURL:   apiBase,
		APIPrefix:    getEnv("API_PREFIX", "/direct"),
		MediaBaseURL: getEnv("MEDIA_BASE_URL", apiBase),
		SocketURL:    getEnv("SOCKET_URL", apiBase),
		PushProtocol: getEnv("PUSH_PROTOCOL", "socketio"),

		ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 10*time.Second),
		SendTimeout:    getEnvAsDuration("SEND_TIMEOUT", 120*time.Second),
		MaxRetries:     getEnvAsInt("MAX_RETRIES", 3),
		RetryDelay:     getEnvAsDuration("RETRY_DELAY", 2*time.Second),
		RefetchDelay:   getEnvAsDuration("REFETCH_DELAY", 500*time.Millisecond),
		ReconnectDelay: getEnvAsDuration("RECONNECT_DELAY", 3*time.Second),

		RecorderCommand:   getEnv("RECORDER_COMMAND", ""),
		RecorderTypes:     getEnvAsList("RECORDER_TYPES", []string{"audio/webm", "audio/ogg"}),
		RecorderTimeslice: getEnvAsDuration("RECORDER_TIMESLICE", time.Second),

		RedisURL: getEnv("REDIS_URL", ""),
		RedisTTL: getEnvAsDuration("REDIS_TTL", 24*time.Hour),

		MinioURL:      getEnv("MINIO_URL", ""),
		MinioUser:     getEnv("MINIO_USER", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioBucket:   getEnv("MINIO_BUCKET", "chat-previews"),
		MaxFileSize:   getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB default
	}
}

// Validate reports the first set of invalid fields as a single error.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// APIPath joins the service prefix with a route.
func (c *Config) APIPath(route string) string {
	return strings.TrimRight(c.APIPrefix, "/") + "/" + strings.TrimLeft(route, "/")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
