package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string

	RedisAddr     string
	RedisPassword string

	PaystackSecretKey string
	PaystackPublicKey string

	GeminiModel string

	// Shared secret expected on inbound message webhooks from the chat transport.
	TransportSecret string

	// Escrow hold knobs. Base hold hours depend on vendor maturity:
	// a vendor with at least EstablishedVendorOrders completed orders
	// uses EstablishedHoldHours, everyone else NewVendorHoldHours.
	NewVendorHoldHours      int
	EstablishedHoldHours    int
	EstablishedVendorOrders int
	MutualTrustHoldHours    int

	// Daily volume cap in naira before the tier multiplier is applied.
	DailyVolumeCapBase int64
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackPublicKey: getEnv("PAYSTACK_PUBLIC_KEY", ""),

		GeminiModel: getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		TransportSecret: getEnv("TRANSPORT_SECRET", ""),

		NewVendorHoldHours:      getEnvAsInt("NEW_VENDOR_HOLD_HOURS", 48),
		EstablishedHoldHours:    getEnvAsInt("ESTABLISHED_HOLD_HOURS", 24),
		EstablishedVendorOrders: getEnvAsInt("ESTABLISHED_VENDOR_ORDERS", 20),
		MutualTrustHoldHours:    getEnvAsInt("MUTUAL_TRUST_HOLD_HOURS", 2),

		DailyVolumeCapBase: getEnvAsInt64("DAILY_VOLUME_CAP_BASE", 500000),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
