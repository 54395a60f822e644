package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	LocalStatePath          string
	SyncSettleSeconds       int
	InitialSyncDelaySeconds int
	ProbeIntervalSeconds    int
	SyncPassTimeoutSeconds  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		LocalStatePath:          os.Getenv("LOCAL_STATE_PATH"),
		SyncSettleSeconds:       positiveEnv("SYNC_SETTLE_SECONDS", 5),
		InitialSyncDelaySeconds: positiveEnv("INITIAL_SYNC_DELAY_SECONDS", 2),
		ProbeIntervalSeconds:    positiveEnv("PROBE_INTERVAL_SECONDS", 10),
		SyncPassTimeoutSeconds:  positiveEnv("SYNC_PASS_TIMEOUT_SECONDS", 30),
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

func positiveEnv(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
