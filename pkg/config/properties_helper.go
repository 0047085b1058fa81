package config

import (
	"os"
	"strings"

	"github.com/downfa11-org/go-recordlog/util"
)

const envPrefix = "RECORDLOG_"

func (cfg *Config) Normalize() {
	if cfg.BrokerPort <= 0 {
		cfg.BrokerPort = DefaultBrokerPort
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = DefaultExporterPort
	}
	if cfg.ShutdownTimeoutMS <= 0 {
		cfg.ShutdownTimeoutMS = DefaultShutdownTimeoutMS
	}

	// record log
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.PartitionCount <= 0 {
		util.Warn("Invalid PartitionCount (%d), defaulting to %d", cfg.PartitionCount, DefaultPartitionCount)
		cfg.PartitionCount = DefaultPartitionCount
	}
	if cfg.LogCount <= 0 {
		util.Warn("Invalid LogCount (%d), defaulting to %d", cfg.LogCount, DefaultLogCount)
		cfg.LogCount = DefaultLogCount
	}
	if cfg.LogCount > cfg.PartitionCount {
		util.Warn("LogCount (%d) exceeds PartitionCount (%d), capping", cfg.LogCount, cfg.PartitionCount)
		cfg.LogCount = cfg.PartitionCount
	}
	if cfg.FlushIntervalMS <= 0 {
		util.Warn("Invalid FlushIntervalMS (%d), defaulting to %dms", cfg.FlushIntervalMS, DefaultFlushIntervalMS)
		cfg.FlushIntervalMS = DefaultFlushIntervalMS
	}
}

func (cfg *Config) applyEnv() {
	overrideEnvInt(&cfg.BrokerPort, envPrefix+"BROKER_PORT")
	overrideEnvBool(&cfg.EnableExporter, envPrefix+"ENABLE_EXPORTER")
	overrideEnvInt(&cfg.ExporterPort, envPrefix+"EXPORTER_PORT")
	overrideEnvLogLevel(&cfg.LogLevel, envPrefix+"LOG_LEVEL")
	overrideEnvInt(&cfg.ShutdownTimeoutMS, envPrefix+"SHUTDOWN_TIMEOUT_MS")
	overrideEnvString(&cfg.LogDir, envPrefix+"LOG_DIR")
	overrideEnvInt(&cfg.LogCount, envPrefix+"LOG_COUNT")
	overrideEnvInt(&cfg.PartitionCount, envPrefix+"PARTITION_COUNT")
	overrideEnvInt(&cfg.FlushIntervalMS, envPrefix+"FLUSH_INTERVAL_MS")
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideEnvLogLevel(target *util.LogLevel, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseLevel(v)
	}
}
