package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled              bool
	KafkaBrokers              []string
	KafkaGroupID              string
	KafkaReadingsTopic        string
	KafkaDecryptRequestTopic  string
	KafkaDecryptResponseTopic string
	KafkaEventsTopic          string

	// OraclePublicKey is the hex Ed25519 key decryption proofs are checked against.
	OraclePublicKey string
	// OraclePrivateKey is the hex signing scalar; only the development oracle reads it.
	OraclePrivateKey string

	// DBPath is the SQLite database holding the ledger state and the event
	// audit log. Empty keeps state in memory only.
	DBPath         string
	EventQueueSize int

	// EncryptionBackend names the encrypted value scheme. Only "simulated"
	// exists today, and it provides no confidentiality.
	EncryptionBackend string
}

// BackendSimulated is the plaintext-simulating encryption backend.
const BackendSimulated = "simulated"

// Load reads the service configuration from environment variables, applying
// defaults where unset.
func Load() (*Config, error) {
	cfg, err := load("smoke-propagation")
	if err != nil {
		return nil, err
	}
	if cfg.OraclePublicKey == "" {
		return nil, errors.New("ORACLE_PUBLIC_KEY is required")
	}
	if cfg.EncryptionBackend != BackendSimulated {
		return nil, errors.New("unsupported ENCRYPTION_BACKEND " + strconv.Quote(cfg.EncryptionBackend))
	}
	if !cfg.KafkaEnabled {
		return cfg, nil
	}
	if err := cfg.validateKafka(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOracle reads the development oracle's configuration. The oracle always
// runs over Kafka and signs with ORACLE_PRIVATE_KEY.
func LoadOracle() (*Config, error) {
	cfg, err := load("smoke-oraclesim")
	if err != nil {
		return nil, err
	}
	cfg.KafkaEnabled = true
	if cfg.OraclePrivateKey == "" {
		return nil, errors.New("ORACLE_PRIVATE_KEY is required")
	}
	if err := cfg.validateKafka(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(defaultGroupID string) (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	queueSize, err := parsePositiveInt("EVENT_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:              sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers:              sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaGroupID:              sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", defaultGroupID),
		KafkaReadingsTopic:        sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "encrypted-sensor-readings"),
		KafkaDecryptRequestTopic:  sharedcfg.EnvOrDefault("KAFKA_DECRYPT_REQUEST_TOPIC", "decryption-requests"),
		KafkaDecryptResponseTopic: sharedcfg.EnvOrDefault("KAFKA_DECRYPT_RESPONSE_TOPIC", "decryption-responses"),
		KafkaEventsTopic:          sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "propagation-events"),

		OraclePublicKey:  os.Getenv("ORACLE_PUBLIC_KEY"),
		OraclePrivateKey: os.Getenv("ORACLE_PRIVATE_KEY"),
		DBPath:           dbPath(),
		EventQueueSize:   queueSize,

		EncryptionBackend: sharedcfg.EnvOrDefault("ENCRYPTION_BACKEND", BackendSimulated),
	}
	return cfg, nil
}

func (cfg *Config) validateKafka() error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	for env, topic := range map[string]string{
		"KAFKA_READINGS_TOPIC":         cfg.KafkaReadingsTopic,
		"KAFKA_DECRYPT_REQUEST_TOPIC":  cfg.KafkaDecryptRequestTopic,
		"KAFKA_DECRYPT_RESPONSE_TOPIC": cfg.KafkaDecryptResponseTopic,
		"KAFKA_EVENTS_TOPIC":           cfg.KafkaEventsTopic,
	} {
		if topic == "" {
			return errors.New(env + " is required")
		}
	}
	if cfg.KafkaDecryptRequestTopic == cfg.KafkaDecryptResponseTopic {
		return errors.New("KAFKA_DECRYPT_REQUEST_TOPIC and KAFKA_DECRYPT_RESPONSE_TOPIC must differ")
	}
	return nil
}

// dbPath distinguishes an explicitly empty DB_PATH (in-memory) from unset.
func dbPath() string {
	if v, ok := os.LookupEnv("DB_PATH"); ok {
		return v
	}
	return "data/smoke.db"
}

func parsePositiveInt(env string, def int) (int, error) {
	s := os.Getenv(env)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + env)
	}
	return n, nil
}
