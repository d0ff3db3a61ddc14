package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the signal engine process
type Config struct {
	Port         string
	StoreBackend string
	MemoryFile   string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
	AITimeout    time.Duration

	// Process-wide trigger defaults, used when an organization has no settings row
	TriggerDefaults models.TriggerSettings
	BufferTTL       time.Duration
	SystemUserEmail string

	StatusStale      time.Duration
	SettingsCacheTTL time.Duration
	MaintenanceSweep time.Duration

	PlanLimitsFile string
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("[CONFIG] Loaded .env")
	}

	defaults := models.DefaultTriggerSettings()
	cfg := &Config{
		Port:         getEnvOrDefault("PORT", "8080"),
		StoreBackend: getEnvOrDefault("STORE_BACKEND", "memory"),
		MemoryFile:   getEnvOrDefault("MEMORY_FILE", "incident_pulse.json"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseIntOrDefault("REDIS_DB", 0),
		NATSURL:       os.Getenv("NATS_URL"),

		AIProvider:   strings.ToLower(getEnvOrDefault("AI_PROVIDER", "openai")),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		AITimeout:    seconds("AI_TIMEOUT_SECONDS", 20),

		TriggerDefaults: models.TriggerSettings{
			Enabled:          parseBoolOrDefault("AUTO_INCIDENT_ENABLED", defaults.Enabled),
			ErrorThreshold:   parseIntOrDefault("AUTO_INCIDENT_ERROR_THRESHOLD", defaults.ErrorThreshold),
			WindowSeconds:    parseIntOrDefault("AUTO_INCIDENT_WINDOW_SECONDS", defaults.WindowSeconds),
			CooldownSeconds:  parseIntOrDefault("AUTO_INCIDENT_COOLDOWN_SECONDS", defaults.CooldownSeconds),
			AISummaryEnabled: parseBoolOrDefault("AUTO_INCIDENT_AI_ENABLED", defaults.AISummaryEnabled),
			SummaryLineCap:   parseIntOrDefault("AUTO_INCIDENT_SUMMARY_LINES", defaults.SummaryLineCap),
		}.Normalize(defaults),
		BufferTTL:       seconds("AUTO_INCIDENT_BUFFER_TTL_SECONDS", 300),
		SystemUserEmail: os.Getenv("AUTO_INCIDENT_SYSTEM_USER_EMAIL"),

		StatusStale:      seconds("STATUS_STALE_SECONDS", 15),
		SettingsCacheTTL: seconds("SETTINGS_CACHE_TTL_SECONDS", 30),
		MaintenanceSweep: seconds("MAINTENANCE_SWEEP_SECONDS", 60),

		PlanLimitsFile: os.Getenv("PLAN_LIMITS_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected backends have what they need
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.AIProvider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}

	if c.MaintenanceSweep < 0 {
		return fmt.Errorf("MAINTENANCE_SWEEP_SECONDS must not be negative")
	}

	if c.StatusStale <= 0 {
		return fmt.Errorf("STATUS_STALE_SECONDS must be positive")
	}

	return nil
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		log.Printf("[CONFIG] Ignoring invalid %s=%q\n", key, value)
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		log.Printf("[CONFIG] Ignoring invalid %s=%q\n", key, value)
	}
	return defaultValue
}

func seconds(key string, defaultValue int) time.Duration {
	return time.Duration(parseIntOrDefault(key, defaultValue)) * time.Second
}
