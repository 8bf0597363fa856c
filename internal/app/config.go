package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env, Port string

	DatabaseURL string

	AuthURL       string
	AuthAPIKey    string
	AuthJWTSecret string

	StateFile     string
	UploadsDir    string
	PublicBaseURL string

	ReconcileInterval time.Duration
	OTPRetryAttempts  int
	OTPRetryDelay     time.Duration

	CORSOrigins []string
}

func (c Config) IsProduction() bool { return c.Env == "production" }

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		log.Printf("⚠️  %s=%q is not a valid duration, using %s", k, v, d)
		return d
	}
	return parsed
}

func getInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Printf("⚠️  %s=%q is not a positive integer, using %d", k, v, d)
		return d
	}
	return n
}

func getList(k, d string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(k, d), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func LoadConfig() Config {
	port := getEnv("APP_PORT", "8080")
	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: port,

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AuthURL:       getEnv("AUTH_URL", ""),
		AuthAPIKey:    getEnv("AUTH_API_KEY", ""),
		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		StateFile:     getEnv("STATE_FILE", "data/device_state.json"),
		UploadsDir:    getEnv("UPLOADS_DIR", "uploads"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:"+port+"/uploads"),

		ReconcileInterval: getDuration("RECONCILE_INTERVAL", time.Minute),
		OTPRetryAttempts:  getInt("OTP_RETRY_ATTEMPTS", 3),
		OTPRetryDelay:     getDuration("OTP_RETRY_DELAY", 2*time.Second),

		CORSOrigins: getList("CORS_ORIGINS", "http://localhost:8081,http://localhost:19006"),
	}
}
