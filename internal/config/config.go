package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                 string
	MongoURI            string
	MongoDB             string
	ServerAddr          string
	FrontendOrigins     []string
	RateLimitBooking    int
	RateLimitReviews    int
	RateLimitWindowSec  int
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	CacheTTLSeconds     int
	AMQPUrl             string
	StripeSecretKey     string
	StripeWebhookSecret string
	JWTSecret           string
	AccessTTLMinutes    int
	RefreshTTLMinutes   int
	VideoCallBaseURL    string
	Timezone            *time.Location
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TZ", "Asia/Karachi"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017/telehealth"),
		MongoDB:             getEnv("MONGO_DB", "telehealth"),
		ServerAddr:          getEnv("SERVER_ADDR", ":8080"),
		FrontendOrigins:     splitCSV(getEnv("FRONTEND_ORIGINS", "http://localhost:3000")),
		RateLimitBooking:    getEnvInt("RATE_LIMIT_BOOKING", 10),
		RateLimitReviews:    getEnvInt("RATE_LIMIT_REVIEWS", 5),
		RateLimitWindowSec:  getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		CacheTTLSeconds:     getEnvInt("CACHE_TTL_SECONDS", 60),
		AMQPUrl:             getEnv("AMQP_URL", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AccessTTLMinutes:    getEnvInt("ACCESS_TTL_MINUTES", 60),
		RefreshTTLMinutes:   getEnvInt("REFRESH_TTL_MINUTES", 43200),
		VideoCallBaseURL:    getEnv("VIDEO_CALL_BASE_URL", "https://meet.jit.si/telehealth"),
		Timezone:            loc,
	}

	return cfg, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
