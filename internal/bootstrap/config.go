package bootstrap

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	FlowURL           string
	FlowAuthToken     string
	TemplateID        string
	TemplateVariables map[string]string

	AudioSampleRate int
	AudioChunkSize  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TranscriptDBPath string

	OpenAIKey string
	TavilyKey string
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		FlowURL:           getEnv("FLOW_URL", "wss://flow.api.speechmatics.com/v1/flow"),
		FlowAuthToken:     getEnv("FLOW_AUTH_TOKEN", ""),
		TemplateID:        getEnv("FLOW_TEMPLATE_ID", "default"),
		TemplateVariables: parseKeyValues(getEnv("FLOW_TEMPLATE_VARS", "")),

		AudioSampleRate: getEnvInt("AUDIO_SAMPLE_RATE", 16000),
		AudioChunkSize:  getEnvInt("AUDIO_CHUNK_SIZE", 1024),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TranscriptDBPath: getEnv("TRANSCRIPT_DB_PATH", "./lumeo.db"),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		TavilyKey: getEnv("TAVILY_API_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// parseKeyValues parses "key=value,key=value" pairs.
func parseKeyValues(envValue string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(envValue, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}
