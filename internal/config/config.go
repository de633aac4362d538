/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// SourceKind selects where the schedule and resources are loaded from.
type SourceKind string

const (
	SourceFile     SourceKind = "file"
	SourceS3       SourceKind = "s3"
	SourceDatabase SourceKind = "db"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Schedule source
	ScheduleSource SourceKind
	SchedulePath   string // file source: schedule document
	ResourcesPath  string // file source: resource catalogue
	ScheduleName   string // db source: stored schedule name
	UTCOffsetHours float64

	DBBackend DatabaseBackend
	DBDSN     string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
	S3ScheduleKey     string
	S3ResourcesKey    string

	// Shared snapshot cache and leader election
	SnapshotCacheEnabled  bool
	LeaderElectionEnabled bool
	SchedulerEnabled      bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Event fan-out
	NATSURL           string
	NATSSubjectPrefix string

	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SLOTCAST_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SLOTCAST_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SLOTCAST_HTTP_PORT", "PORT"}, 8080),

		ScheduleSource: SourceKind(strings.ToLower(getEnvAny([]string{"SLOTCAST_SCHEDULE_SOURCE"}, string(SourceFile)))),
		SchedulePath:   getEnvAny([]string{"SLOTCAST_SCHEDULE_PATH"}, "./schedule.yaml"),
		ResourcesPath:  getEnvAny([]string{"SLOTCAST_RESOURCES_PATH"}, ""),
		ScheduleName:   getEnvAny([]string{"SLOTCAST_SCHEDULE_NAME"}, "default"),
		UTCOffsetHours: getEnvFloatAny([]string{"SLOTCAST_UTC_OFFSET_HOURS"}, 9),

		DBBackend: DatabaseBackend(getEnvAny([]string{"SLOTCAST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"SLOTCAST_DB_DSN"}, ""),

		S3AccessKeyID:     getEnvAny([]string{"SLOTCAST_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SLOTCAST_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SLOTCAST_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SLOTCAST_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SLOTCAST_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SLOTCAST_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3ScheduleKey:     getEnvAny([]string{"SLOTCAST_S3_SCHEDULE_KEY"}, "schedule.yaml"),
		S3ResourcesKey:    getEnvAny([]string{"SLOTCAST_S3_RESOURCES_KEY"}, ""),

		SnapshotCacheEnabled:  getEnvBoolAny([]string{"SLOTCAST_SNAPSHOT_CACHE_ENABLED"}, false),
		LeaderElectionEnabled: getEnvBoolAny([]string{"SLOTCAST_LEADER_ELECTION_ENABLED"}, false),
		SchedulerEnabled:      getEnvBoolAny([]string{"SLOTCAST_SCHEDULER_ENABLED"}, true),
		RedisAddr:             getEnvAny([]string{"SLOTCAST_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"SLOTCAST_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"SLOTCAST_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"SLOTCAST_INSTANCE_ID", "HOSTNAME"}, ""),

		NATSURL:           getEnvAny([]string{"SLOTCAST_NATS_URL"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"SLOTCAST_NATS_SUBJECT_PREFIX"}, "slotcast"),

		JWTSigningKey: getEnvAny([]string{"SLOTCAST_JWT_SIGNING_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"SLOTCAST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SLOTCAST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SLOTCAST_TRACING_SAMPLE_RATE"}, 1.0),
	}

	switch cfg.ScheduleSource {
	case SourceFile:
		if cfg.SchedulePath == "" {
			return nil, fmt.Errorf("SLOTCAST_SCHEDULE_PATH must be provided for the file source")
		}
	case SourceS3:
		if cfg.S3Bucket == "" || cfg.S3ScheduleKey == "" {
			return nil, fmt.Errorf("SLOTCAST_S3_BUCKET and SLOTCAST_S3_SCHEDULE_KEY must be provided for the s3 source")
		}
	case SourceDatabase:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("SLOTCAST_DB_DSN must be provided for the db source")
		}
	default:
		return nil, fmt.Errorf("unsupported schedule source %q", cfg.ScheduleSource)
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.UTCOffsetHours < -12 || cfg.UTCOffsetHours > 14 {
		return nil, fmt.Errorf("SLOTCAST_UTC_OFFSET_HOURS %v is outside -12..14", cfg.UTCOffsetHours)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("SLOTCAST_TRACING_SAMPLE_RATE %v is outside 0..1", cfg.TracingSampleRate)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SLOTCAST_JWT_SIGNING_KEY must be provided in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// UTCOffset returns the schedule zone offset, rounded to the minute.
func (c *Config) UTCOffset() time.Duration {
	return time.Duration(math.Round(c.UTCOffsetHours*60)) * time.Minute
}

// HTTPAddr is the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"SCHEDULE_FILE":   "use SLOTCAST_SCHEDULE_PATH",
		"RESOURCES_FILE":  "use SLOTCAST_RESOURCES_PATH",
		"JWT_SIGNING_KEY": "use SLOTCAST_JWT_SIGNING_KEY",
		"NATS_URL":        "use SLOTCAST_NATS_URL",
		"REDIS_ADDR":      "use SLOTCAST_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
