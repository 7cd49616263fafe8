package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Exchange struct {
	StartingCoins int64    // granted to every new user
	IPOShares     int64    // seeded at the listing price when a guild is registered
	Admins        []string // user ids allowed to halt, resume, seed and grant
}

// Pricing weights for the activity-driven true price.
type Pricing struct {
	Base          decimal.Decimal
	MemberWeight  decimal.Decimal
	MessageWeight decimal.Decimal
	AuthorWeight  decimal.Decimal
	DriftWeight   decimal.Decimal
	SampleWindow  int
}

type Activity struct {
	Interval time.Duration
}

type Storage struct {
	DataDir     string // pebble directory; empty keeps state in memory
	JournalFile string // empty disables the command journal
	LogFile     string
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Kafka struct {
	Brokers []string // empty disables the publisher
	Topic   string
}

type Config struct {
	Exchange Exchange
	Pricing  Pricing
	Activity Activity
	Storage  Storage
	API      API
	Kafka    Kafka
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			StartingCoins: 1000,
			IPOShares:     1000,
		},
		Pricing: Pricing{
			Base:          decimal.NewFromInt(1),
			MemberWeight:  decimal.RequireFromString("0.05"),
			MessageWeight: decimal.RequireFromString("0.2"),
			AuthorWeight:  decimal.NewFromInt(1),
			DriftWeight:   decimal.RequireFromString("0.1"),
			SampleWindow:  24,
		},
		Activity: Activity{
			Interval: time.Hour,
		},
		Storage: Storage{
			DataDir:     "data/db",
			JournalFile: "data/journal.log",
			LogFile:     "data/guildbot.log",
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Kafka: Kafka{
			Topic: "guildex.events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Exchange.StartingCoins = getInt64("STARTING_COINS", cfg.Exchange.StartingCoins)
	cfg.Exchange.IPOShares = getInt64("IPO_SHARES", cfg.Exchange.IPOShares)
	cfg.Exchange.Admins = getList("ADMIN_IDS", cfg.Exchange.Admins)

	cfg.Pricing.Base = getDecimal("PRICE_BASE", cfg.Pricing.Base)
	cfg.Pricing.MemberWeight = getDecimal("PRICE_MEMBER_WEIGHT", cfg.Pricing.MemberWeight)
	cfg.Pricing.MessageWeight = getDecimal("PRICE_MESSAGE_WEIGHT", cfg.Pricing.MessageWeight)
	cfg.Pricing.AuthorWeight = getDecimal("PRICE_AUTHOR_WEIGHT", cfg.Pricing.AuthorWeight)
	cfg.Pricing.DriftWeight = getDecimal("DRIFT_WEIGHT", cfg.Pricing.DriftWeight)
	if n := getInt64("SAMPLE_WINDOW", int64(cfg.Pricing.SampleWindow)); n > 0 {
		cfg.Pricing.SampleWindow = int(n)
	}

	if ms := getInt64("ACTIVITY_INTERVAL_MS", 0); ms > 0 {
		cfg.Activity.Interval = time.Duration(ms) * time.Millisecond
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.JournalFile = getEnv("JOURNAL_FILE", cfg.Storage.JournalFile)
	cfg.Storage.LogFile = getEnv("LOG_FILE", cfg.Storage.LogFile)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.CORSOrigins = getList("CORS_ORIGINS", cfg.API.CORSOrigins)

	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping blanks.
func getList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
