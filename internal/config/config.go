package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderGigaChat = "gigachat"
	ProviderGemini   = "gemini"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Basic auth
	APIUser     string
	APIPassword string
	AuthRealm   string

	// Upstream
	Provider           string
	UpstreamTimeoutSec int

	// GigaChat
	GigaChatCredentials    string
	GigaChatModel          string
	GigaChatBaseURL        string
	GigaChatAuthURL        string
	GigaChatScope          string
	GigaChatVerifySSL      bool
	GigaChatProfanityCheck bool
	GigaChatConcurrentReqs int

	// Gemini AI
	GeminiAPIKey string
	GeminiModel  string

	// Redis (optional, shares the upstream access token between replicas)
	RedisURL string

	// HTTP surface
	CORSAllowedOrigins []string
	StaticDir          string
}

// Load reads the process configuration once. Values from envFiles are applied
// first when the files exist; real environment variables always win.
func Load(envFiles ...string) *Config {
	godotenv.Load(envFiles...)

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		APIUser:     os.Getenv("API_USER"),
		APIPassword: os.Getenv("API_PASSWORD"),
		AuthRealm:   getEnvOrDefault("AUTH_REALM", "gigachat-relay"),
		Provider:    strings.ToLower(getEnvOrDefault("UPSTREAM_PROVIDER", ProviderGigaChat)),

		UpstreamTimeoutSec: getEnvAsIntOrDefault("UPSTREAM_TIMEOUT_SECONDS", 60),

		GigaChatModel:          getEnvOrDefault("GIGACHAT_MODEL", "GigaChat-Pro"),
		GigaChatBaseURL:        getEnvOrDefault("GIGACHAT_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
		GigaChatAuthURL:        getEnvOrDefault("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
		GigaChatScope:          getEnvOrDefault("GIGACHAT_SCOPE", "GIGACHAT_API_CORP"),
		GigaChatVerifySSL:      getEnvAsBoolOrDefault("GIGACHAT_VERIFY_SSL_CERTS", false),
		GigaChatProfanityCheck: getEnvAsBoolOrDefault("GIGACHAT_PROFANITY_CHECK", false),
		GigaChatConcurrentReqs: getEnvAsIntOrDefault("GIGACHAT_CONCURRENT_REQUESTS", 5),

		GeminiModel: getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),

		RedisURL: getEnvOrDefault("REDIS_URL", ""),

		CORSAllowedOrigins: getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		StaticDir:          getEnvOrDefault("STATIC_DIR", "static"),
	}

	switch cfg.Provider {
	case ProviderGigaChat:
		cfg.GigaChatCredentials = mustGetEnv("GIGACHAT_CREDENTIALS")
	case ProviderGemini:
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	default:
		panic(fmt.Sprintf("unsupported UPSTREAM_PROVIDER %q", cfg.Provider))
	}

	return cfg
}

// AuthConfigured reports whether both Basic-auth secrets are set. Without them
// no request can authenticate.
func (c *Config) AuthConfigured() bool {
	return c.APIUser != "" && c.APIPassword != ""
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
