package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	PosBaseURL               string
	PosToken                 string
	PosPageLimit             int
	SyncIntervalMinutes      int
	SyncLookbackMinutes      int
	AggregateCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pageLimit, err := strconv.Atoi(getEnv("POS_PAGE_LIMIT", "250"))
	if err != nil || pageLimit < 1 {
		pageLimit = 250
	}
	syncInterval, err := strconv.Atoi(getEnv("SYNC_INTERVAL_MINUTES", "5"))
	if err != nil || syncInterval < 1 {
		syncInterval = 5
	}
	syncLookback, err := strconv.Atoi(getEnv("SYNC_LOOKBACK_MINUTES", "30"))
	if err != nil || syncLookback < 1 {
		syncLookback = 30
	}
	cacheTTL, err := strconv.Atoi(getEnv("AGGREGATE_CACHE_TTL_SECONDS", "600"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 600
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		PosBaseURL:               strings.TrimSpace(os.Getenv("POS_API_BASE_URL")),
		PosToken:                 strings.TrimSpace(os.Getenv("POS_API_TOKEN")),
		PosPageLimit:             pageLimit,
		SyncIntervalMinutes:      syncInterval,
		SyncLookbackMinutes:      syncLookback,
		AggregateCacheTTLSeconds: cacheTTL,
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
