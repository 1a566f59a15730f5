// Package config loads process configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GRPCAddr string
	HTTPAddr string
	Debug    bool

	// Sequencer
	QueueSize     int
	DepthInterval time.Duration

	// Durability
	JournalDir string // empty disables the request journal
	OutboxDir  string // empty disables the trade outbox

	// Kafka. Empty broker list disables both publishers.
	KafkaBrokers      []string
	TradesTopic       string
	DepthTopic        string
	BroadcastInterval time.Duration
	DepthBuffer       int
}

func Default() Config {
	return Config{
		GRPCAddr:          ":9090",
		HTTPAddr:          ":8080",
		QueueSize:         1024,
		DepthInterval:     250 * time.Millisecond,
		JournalDir:        "data/journal",
		OutboxDir:         "data/outbox",
		TradesTopic:       "trades",
		DepthTopic:        "depth",
		BroadcastInterval: time.Second,
		DepthBuffer:       64,
	}
}

// Load reads envPath ("" means ./.env, missing file is fine) and
// applies environment overrides on top of the defaults.
func Load(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()

	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setBool(&cfg.Debug, "DEBUG")

	setInt(&cfg.QueueSize, "QUEUE_SIZE")
	setDurationMS(&cfg.DepthInterval, "DEPTH_INTERVAL_MS")

	setString(&cfg.JournalDir, "JOURNAL_DIR")
	setString(&cfg.OutboxDir, "OUTBOX_DIR")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	setString(&cfg.TradesTopic, "TRADES_TOPIC")
	setString(&cfg.DepthTopic, "DEPTH_TOPIC")
	setDurationMS(&cfg.BroadcastInterval, "BROADCAST_INTERVAL_MS")
	setInt(&cfg.DepthBuffer, "DEPTH_BUFFER")

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDurationMS(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}
