package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/go-recordlog/util"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBrokerPort        = 8123
	DefaultLogDir            = "/tmp/lks"
	DefaultLogCount          = 4
	DefaultPartitionCount    = 100
	DefaultFlushIntervalMS   = 250
	DefaultExporterPort      = 9100
	DefaultShutdownTimeoutMS = 5000
)

// Config represents the broker configuration
type Config struct {
	// Server settings
	BrokerPort        int           `yaml:"broker_port" json:"broker.port"`
	EnableExporter    bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort      int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel          util.LogLevel `yaml:"log_level" json:"log_level"`
	ShutdownTimeoutMS int           `yaml:"shutdown_timeout_ms" json:"shutdown.timeout.ms"`

	// Record log
	LogDir          string `yaml:"log_dir" json:"log.dir"`
	LogCount        int    `yaml:"log_count" json:"log.count"`
	PartitionCount  int    `yaml:"partition_count" json:"partition.count"`
	FlushIntervalMS int    `yaml:"flush_interval_ms" json:"flush.interval.ms"`
}

func Default() *Config {
	return &Config{
		BrokerPort:        DefaultBrokerPort,
		ExporterPort:      DefaultExporterPort,
		LogLevel:          util.LogLevelInfo,
		ShutdownTimeoutMS: DefaultShutdownTimeoutMS,
		LogDir:            DefaultLogDir,
		LogCount:          DefaultLogCount,
		PartitionCount:    DefaultPartitionCount,
		FlushIntervalMS:   DefaultFlushIntervalMS,
	}
}

// LoadConfig builds the configuration from defaults, an optional .env file,
// an optional YAML/JSON file, RECORDLOG_* environment variables and finally
// the flags given in args, each layer overriding the previous one.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("broker", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	envFile := fs.String("env-file", ".env", "Path to a dotenv file")
	port := fs.Int("port", DefaultBrokerPort, "Broker HTTP port")
	logDir := fs.String("log-dir", DefaultLogDir, "Directory for log files and the commit index")
	logCount := fs.Int("log-count", DefaultLogCount, "Number of log files")
	partitionCount := fs.Int("partitions", DefaultPartitionCount, "Number of partitions")
	flushMS := fs.Int("flush-interval-ms", DefaultFlushIntervalMS, "Writer flush interval (ms)")
	exporter := fs.Bool("exporter", false, "Enable Prometheus exporter")
	exporterPort := fs.Int("exporter-port", DefaultExporterPort, "Exporter port")
	logLevel := fs.String("log-level", "info", "Log Level (debug, info, warn, error)")
	shutdownMS := fs.Int("shutdown-timeout-ms", DefaultShutdownTimeoutMS, "Graceful shutdown timeout (ms)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", *envFile, err)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.BrokerPort = *port
		case "log-dir":
			cfg.LogDir = *logDir
		case "log-count":
			cfg.LogCount = *logCount
		case "partitions":
			cfg.PartitionCount = *partitionCount
		case "flush-interval-ms":
			cfg.FlushIntervalMS = *flushMS
		case "exporter":
			cfg.EnableExporter = *exporter
		case "exporter-port":
			cfg.ExporterPort = *exporterPort
		case "log-level":
			cfg.LogLevel = util.ParseLevel(*logLevel)
		case "shutdown-timeout-ms":
			cfg.ShutdownTimeoutMS = *shutdownMS
		}
	})

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) FlushInterval() time.Duration {
	return time.Duration(cfg.FlushIntervalMS) * time.Millisecond
}

func (cfg *Config) ShutdownTimeout() time.Duration {
	return time.Duration(cfg.ShutdownTimeoutMS) * time.Millisecond
}
