// Package config handles loading and validation of publisher.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	ddbprov "github.com/dwsmith1983/releasepub/internal/provider/dynamodb"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// FileName is the conventional configuration file name.
const FileName = "publisher.yaml"

// Config is the complete publisher configuration.
type Config struct {
	StatusStore   ddbprov.Config      `yaml:"statusStore"`
	Content       ContentConfig       `yaml:"content"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationConfig  `yaml:"notifications"`
	EventTopics   []types.TopicConfig `yaml:"eventTopics"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	// LockTTL enables the completion lock when positive.
	LockTTL time.Duration `yaml:"lockTTL,omitempty"`
}

// ContentConfig locates the content database.
type ContentConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig locates the public content cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db,omitempty"`
	KeyPrefix string        `yaml:"keyPrefix,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// StorageConfig names the private and public file buckets.
type StorageConfig struct {
	PrivateBucket string `yaml:"privateBucket"`
	PublicBucket  string `yaml:"publicBucket"`
}

// NotificationConfig names the subscriber notification queue.
type NotificationConfig struct {
	QueueURL string `yaml:"queueUrl"`
}

// TelemetryConfig controls OpenTelemetry export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg. Set variables win over the file.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TABLE_NAME", &cfg.StatusStore.TableName)
	str("AWS_REGION", &cfg.StatusStore.Region)
	str("DYNAMODB_ENDPOINT", &cfg.StatusStore.Endpoint)
	str("DATABASE_DRIVER", &cfg.Content.Driver)
	str("DATABASE_URL", &cfg.Content.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("PRIVATE_BUCKET", &cfg.Storage.PrivateBucket)
	str("PUBLIC_BUCKET", &cfg.Storage.PublicBucket)
	str("NOTIFICATION_QUEUE_URL", &cfg.Notifications.QueueURL)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v, ok := lookup("INVOCATION_LOCK_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INVOCATION_LOCK_TTL: %w", err)
		}
		cfg.LockTTL = d
	}

	// A single topic for the published event can come from the environment.
	if endpoint, ok := lookup("RELEASE_PUBLISHED_TOPIC_ENDPOINT"); ok && endpoint != "" {
		topic := types.TopicConfig{Key: string(types.EventReleaseVersionPublished), TopicEndpoint: endpoint}
		str("RELEASE_PUBLISHED_TOPIC_ACCESS_KEY", &topic.TopicAccessKey)
		cfg.EventTopics = upsertTopic(cfg.EventTopics, topic)
	}
	return nil
}

func upsertTopic(topics []types.TopicConfig, t types.TopicConfig) []types.TopicConfig {
	for i := range topics {
		if topics[i].Key == t.Key {
			topics[i] = t
			return topics
		}
	}
	return append(topics, t)
}

func applyDefaults(cfg *Config) {
	if cfg.Content.Driver == "" {
		cfg.Content.Driver = "pgx"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "releasepub"
	}
}

// Validate reports every missing or malformed setting.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StatusStore, validation.By(func(any) error {
			return validation.ValidateStruct(&c.StatusStore,
				validation.Field(&c.StatusStore.TableName, validation.Required),
			)
		})),
		validation.Field(&c.Content),
		validation.Field(&c.Redis),
		validation.Field(&c.Storage),
		validation.Field(&c.Notifications),
		validation.Field(&c.EventTopics, validation.By(validateTopics)),
		validation.Field(&c.LockTTL, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (c ContentConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("pgx", "postgres", "sqlite3")),
		validation.Field(&c.DSN, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (r RedisConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
		validation.Field(&r.TTL, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.PrivateBucket, validation.Required),
		validation.Field(&s.PublicBucket, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (n NotificationConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.QueueURL, validation.Required),
	)
}

func validateTopics(value any) error {
	topics, _ := value.([]types.TopicConfig)
	seen := make(map[string]bool, len(topics))
	for i, t := range topics {
		if t.Key == "" || t.TopicEndpoint == "" {
			return fmt.Errorf("topic %d: key and topicEndpoint are required", i)
		}
		if seen[t.Key] {
			return errors.New("duplicate topic key " + t.Key)
		}
		seen[t.Key] = true
	}
	return nil
}
