package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type ServiceConfig struct {
	HTTPAddr       string
	GRPCHealthAddr string // empty disables the gRPC health listener
	AllowedOrigins []string
}

type TransferConfig struct {
	TTL                 time.Duration
	ExpirySweepInterval time.Duration
	TombstoneTTL        time.Duration
	MaxBatchBytes       int64 // 0 means unlimited
	CodeAttempts        int
}

type SessionConfig struct {
	LivenessTimeout       time.Duration
	LivenessSweepInterval time.Duration
	MaxMessageBytes       int64
	OutboxSize            int
	MessagesPerSecond     float64
	MessageBurst          int
}

type Config struct {
	Env         string
	Tracing     bool
	TracingAddr string

	*ServiceConfig
	*TransferConfig
	*SessionConfig
}

func LoadConfig() Config {
	return Config{
		Env:         getEnv("ENV", "development"),
		Tracing:     getBool("TRACING", false),
		TracingAddr: getEnv("TRACING_ADDR", "localhost:4317"),

		ServiceConfig: &ServiceConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
			GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
			AllowedOrigins: getList("ALLOWED_ORIGINS"),
		},
		TransferConfig: &TransferConfig{
			TTL:                 getDuration("TRANSFER_TTL", time.Hour),
			ExpirySweepInterval: getDuration("EXPIRY_SWEEP_INTERVAL", 10*time.Minute),
			TombstoneTTL:        getDuration("TOMBSTONE_TTL", 10*time.Minute),
			MaxBatchBytes:       getInt64("MAX_BATCH_BYTES", 500*1024*1024),
			CodeAttempts:        int(getInt64("CODE_ATTEMPTS", 16)),
		},
		SessionConfig: &SessionConfig{
			LivenessTimeout:       getDuration("LIVENESS_TIMEOUT", 60*time.Second),
			LivenessSweepInterval: getDuration("LIVENESS_SWEEP_INTERVAL", 30*time.Second),
			MaxMessageBytes:       getInt64("MAX_MESSAGE_BYTES", 16*1024*1024),
			OutboxSize:            int(getInt64("OUTBOX_SIZE", 256)),
			MessagesPerSecond:     getFloat("MESSAGES_PER_SECOND", 200),
			MessageBurst:          int(getInt64("MESSAGE_BURST", 400)),
		},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ServiceConfig == nil || c.ServiceConfig.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.TransferConfig != nil {
		if c.TransferConfig.TTL <= 0 {
			errs = append(errs, errors.New("TRANSFER_TTL must be positive"))
		}
		if c.TransferConfig.ExpirySweepInterval <= 0 {
			errs = append(errs, errors.New("EXPIRY_SWEEP_INTERVAL must be positive"))
		}
		if c.TransferConfig.CodeAttempts < 1 {
			errs = append(errs, errors.New("CODE_ATTEMPTS must be at least 1"))
		}
		if c.TransferConfig.MaxBatchBytes < 0 {
			errs = append(errs, errors.New("MAX_BATCH_BYTES must not be negative"))
		}
	} else {
		errs = append(errs, errors.New("transfer config missing"))
	}
	if c.SessionConfig != nil {
		if c.SessionConfig.LivenessTimeout <= 0 || c.SessionConfig.LivenessSweepInterval <= 0 {
			errs = append(errs, errors.New("liveness timeout and sweep interval must be positive"))
		}
		if c.SessionConfig.OutboxSize < 1 {
			errs = append(errs, errors.New("OUTBOX_SIZE must be at least 1"))
		}
		if c.SessionConfig.MessagesPerSecond <= 0 || c.SessionConfig.MessageBurst < 1 {
			errs = append(errs, errors.New("rate limit must be positive"))
		}
	} else {
		errs = append(errs, errors.New("session config missing"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	fmt.Fprintf(os.Stderr, "config: ignoring invalid %s=%q\n", key, raw)
	return fallback
}

func getList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
