package config

import (
	"strconv"
)

type Config struct {
	Port        string
	Environment string

	// Redis
	RedisHost string
	RedisPort string

	// Postgres
	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// Platform API (notification sink)
	APIURL string

	// ZAP daemon
	ZAPHost   string
	ZAPPort   int
	ZAPAPIKey string

	// External tool binaries
	NucleiPath         string
	NucleiTemplates    string
	SchemathesisPath   string
	ZAPMaxScanDuration int // seconds

	// Agent upload credentials
	VulxAPIURL    string
	VulxAPIKey    string
	VulxProjectID string
}

func Load() (*Config, error) {
	// Use the centralized environment loader
	LoadEnvOnce()

	zapPort, _ := strconv.Atoi(GetEnvWithFallback("ZAP_PORT", "8080"))
	maxDuration, _ := strconv.Atoi(GetEnvWithFallback("ZAP_MAX_DURATION", "3600"))

	return &Config{
		Port:        GetEnvWithFallback("PORT", "8000"),
		Environment: GetEnvWithFallback("ENVIRONMENT", "development"),

		RedisHost: GetEnvWithFallback("REDIS_HOST", "localhost"),
		RedisPort: GetEnvWithFallback("REDIS_PORT", "6379"),

		DBHost: GetEnvWithFallback("DB_HOST", "localhost"),
		DBPort: GetEnvWithFallback("DB_PORT", "5432"),
		DBName: GetEnvWithFallback("DB_NAME", "vulx"),
		DBUser: GetEnvWithFallback("DB_USER", "postgres"),
		DBPass: GetEnvWithFallback("DB_PASS", ""),

		APIURL: GetEnvWithFallback("API_URL", "http://localhost:3000"),

		ZAPHost:   GetEnvWithFallback("ZAP_HOST", "localhost"),
		ZAPPort:   zapPort,
		ZAPAPIKey: GetEnvWithFallback("ZAP_API_KEY", ""),

		NucleiPath:         GetEnvWithFallback("NUCLEI_PATH", "nuclei"),
		NucleiTemplates:    GetEnvWithFallback("NUCLEI_TEMPLATES", "/opt/nuclei-templates"),
		SchemathesisPath:   GetEnvWithFallback("SCHEMATHESIS_PATH", "schemathesis"),
		ZAPMaxScanDuration: maxDuration,

		VulxAPIURL:    GetEnvWithFallback("VULX_API_URL", "https://api.vulx.io"),
		VulxAPIKey:    GetEnvWithFallback("VULX_API_KEY", ""),
		VulxProjectID: GetEnvWithFallback("VULX_PROJECT_ID", ""),
	}, nil
}

// RedisAddr returns the host:port pair for the queue connection.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
