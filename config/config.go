package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Forexflow ForexflowConfig `yaml:"forexflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Source    SourceConfig    `yaml:"source"`
	Producer  ProducerConfig  `yaml:"producer"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Stream    StreamConfig    `yaml:"stream"`
	Storage   StorageConfig   `yaml:"storage"`
}

type ForexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type SourceConfig struct {
	Oanda OandaConfig `yaml:"oanda"`
}

type OandaConfig struct {
	URL               string `yaml:"url"`
	APIKey            string `yaml:"api_key"`
	TimeoutMs         int    `yaml:"timeout_ms"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	BurstSize         int    `yaml:"burst_size"`
}

type ProducerConfig struct {
	Instruments     []string `yaml:"instruments"`
	PollIntervalSec int      `yaml:"poll_interval_sec"`
	PartitionKey    string   `yaml:"partition_key"`
}

type ConsumerConfig struct {
	RecordLimit     int          `yaml:"record_limit"`
	PollIntervalSec int          `yaml:"poll_interval_sec"`
	BackoffSec      int          `yaml:"backoff_sec"`
	PullTimeoutMs   int          `yaml:"pull_timeout_ms"`
	Resume          ResumeConfig `yaml:"resume"`
}

type ResumeConfig struct {
	Position string `yaml:"position"` // "latest" or "sequence"
	Token    string `yaml:"token"`
}

type StreamConfig struct {
	Backend         string      `yaml:"backend"` // "kinesis", "kafka" or "memory"
	Name            string      `yaml:"name"`
	ShardID         string      `yaml:"shard_id"`
	Region          string      `yaml:"region"`
	Endpoint        string      `yaml:"endpoint"`
	AccessKeyID     string      `yaml:"access_key_id"`
	SecretAccessKey string      `yaml:"secret_access_key"`
	Kafka           KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	Partition  int      `yaml:"partition"`
	ReadWaitMs int      `yaml:"read_wait_ms"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	RawBucket       string `yaml:"raw_bucket"`
	ProcessedBucket string `yaml:"processed_bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Consumer: ConsumerConfig{
			Resume: ResumeConfig{Position: "latest"},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("OANDA_API_KEY"); v != "" {
		config.Source.Oanda.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Stream.AccessKeyID = strings.TrimSpace(v)
		config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Stream.SecretAccessKey = strings.TrimSpace(v)
		config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Stream.Region = strings.TrimSpace(v)
		config.Storage.S3.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_RAW_BUCKET"); v != "" {
		config.Storage.S3.RawBucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_PROCESSED_BUCKET"); v != "" {
		config.Storage.S3.ProcessedBucket = strings.TrimSpace(v)
	}

	config.Storage.S3.RawBucket = strings.TrimSpace(config.Storage.S3.RawBucket)
	config.Storage.S3.ProcessedBucket = strings.TrimSpace(config.Storage.S3.ProcessedBucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Forexflow.Name == "" {
		return fmt.Errorf("forexflow.name is required")
	}
	if cfg.Forexflow.Version == "" {
		return fmt.Errorf("forexflow.version is required")
	}

	if len(cfg.Producer.Instruments) == 0 {
		return fmt.Errorf("producer.instruments must not be empty")
	}
	if cfg.Producer.PollIntervalSec <= 0 {
		return fmt.Errorf("producer.poll_interval_sec must be greater than 0")
	}
	if cfg.Producer.PartitionKey == "" {
		return fmt.Errorf("producer.partition_key is required")
	}

	if cfg.Consumer.RecordLimit <= 0 {
		return fmt.Errorf("consumer.record_limit must be greater than 0")
	}
	if cfg.Consumer.PollIntervalSec <= 0 {
		return fmt.Errorf("consumer.poll_interval_sec must be greater than 0")
	}
	if cfg.Consumer.BackoffSec <= cfg.Consumer.PollIntervalSec {
		return fmt.Errorf("consumer.backoff_sec must be greater than consumer.poll_interval_sec")
	}
	switch cfg.Consumer.Resume.Position {
	case "latest":
	case "sequence":
		if cfg.Consumer.Resume.Token == "" {
			return fmt.Errorf("consumer.resume.token is required when position is 'sequence'")
		}
	default:
		return fmt.Errorf("consumer.resume.position must be 'latest' or 'sequence'")
	}

	switch cfg.Stream.Backend {
	case "kinesis":
		if cfg.Stream.Name == "" {
			return fmt.Errorf("stream.name is required for the kinesis backend")
		}
		if cfg.Stream.ShardID == "" {
			return fmt.Errorf("stream.shard_id is required for the kinesis backend")
		}
		if cfg.Stream.Region == "" {
			return fmt.Errorf("stream.region is required for the kinesis backend")
		}
	case "kafka":
		if len(cfg.Stream.Kafka.Brokers) == 0 {
			return fmt.Errorf("stream.kafka.brokers must not be empty for the kafka backend")
		}
		if cfg.Stream.Kafka.Topic == "" {
			return fmt.Errorf("stream.kafka.topic is required for the kafka backend")
		}
	case "memory":
	default:
		return fmt.Errorf("stream.backend must be 'kinesis', 'kafka' or 'memory'")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.RawBucket == "" || cfg.Storage.S3.ProcessedBucket == "" {
			return fmt.Errorf("storage.s3.raw_bucket and storage.s3.processed_bucket are required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.RawBucket) {
			return fmt.Errorf("storage.s3.raw_bucket '%s' is invalid", cfg.Storage.S3.RawBucket)
		}
		if !isValidS3Bucket(cfg.Storage.S3.ProcessedBucket) {
			return fmt.Errorf("storage.s3.processed_bucket '%s' is invalid", cfg.Storage.S3.ProcessedBucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
