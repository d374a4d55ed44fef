package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Stacks configuration
	StacksAPIURL        string
	StacksNetwork       string
	ContractAddress     string
	ContractName        string
	StacksPrivateKey    string
	StacksTxFee         uint64
	TxPollInterval      time.Duration
	WalletRecencyWindow time.Duration

	// Pinata configuration
	PinataAPIKey       string
	PinataSecretAPIKey string
	PinataAPIURL       string
	IPFSGateway        string
	MintURIGateway     string

	// Sessions and abuse protection
	SessionTTL         time.Duration
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads the environment, after overlaying a .env file when one is
// present in the working directory.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "nft-ticket-server"),

		// Stacks
		StacksAPIURL:        getEnv("STACKS_API_URL", "https://api.testnet.hiro.so"),
		StacksNetwork:       getEnv("STACKS_NETWORK", "testnet"),
		ContractAddress:     getEnv("CONTRACT_ADDRESS", "ST3GJH07ZBJ6F385P8JP7YCS03E3HH6FENAZ5YBPK"),
		ContractName:        getEnv("CONTRACT_NAME", "nft-ticket"),
		StacksPrivateKey:    getEnv("STACKS_PRIVATE_KEY", ""),
		StacksTxFee:         uint64(getEnvAsInt("STACKS_TX_FEE", 2000)),
		TxPollInterval:      getEnvAsDuration("TX_POLL_INTERVAL", "5s"),
		WalletRecencyWindow: getEnvAsDuration("WALLET_RECENCY_WINDOW", "5m"),

		// Pinata
		PinataAPIKey:       getEnv("PINATA_API_KEY", ""),
		PinataSecretAPIKey: getEnv("PINATA_SECRET_API_KEY", ""),
		PinataAPIURL:       getEnv("PINATA_API_URL", "https://api.pinata.cloud"),
		IPFSGateway:        getEnv("IPFS_GATEWAY", "https://gateway.pinata.cloud"),
		MintURIGateway:     getEnv("MINT_URI_GATEWAY", ""),

		// Sessions
		SessionTTL:         getEnvAsDuration("SESSION_TTL", "24h"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
