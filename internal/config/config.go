package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey         string
	DatabaseURL          string
	HTTPPort             string
	LogLevel             string
	JWTSecret            string
	OracleTimeoutSeconds int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:          getEnv("DATABASE_URL", "medplant.db"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		OracleTimeoutSeconds: getEnvAsInt("ORACLE_TIMEOUT_SECONDS", 45),
	}

	if AppConfig.GeminiAPIKey == "" {
		// Model calls without a key are rejected by the service, not by us.
		log.Println("Warning: GEMINI_API_KEY is not set, generative model calls will fail upstream")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
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
