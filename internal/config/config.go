package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds process settings read from the environment.
type Config struct {
	APIURL       string
	WSURL        string
	DataDir      string
	ArchiveDSN   string
	AMQPURL      string
	AMQPExchange string
	OTLPEndpoint string
	ControlAddr  string
	AppEnv       string
	LogLevel     string
}

// Load reads .env when present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("[config] could not read .env")
	}

	apiURL := strings.TrimRight(getEnv("CHAT_API_URL", "http://localhost:3000"), "/")
	return Config{
		APIURL:       apiURL,
		WSURL:        getEnv("CHAT_WS_URL", CableURL(apiURL)),
		DataDir:      getEnv("CHAT_DATA_DIR", defaultDataDir()),
		ArchiveDSN:   os.Getenv("ARCHIVE_DSN"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat.client.events"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ControlAddr:  getEnv("CONTROL_ADDR", "127.0.0.1:8090"),
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// CableURL derives the websocket endpoint from the API base URL.
func CableURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://") + "/cable"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://") + "/cable"
	default:
		return apiURL + "/cable"
	}
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "chat-client"
	}
	return ".chat-client"
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
