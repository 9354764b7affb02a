package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// RegisterFlags registers all command-line flags
func RegisterFlags() {
	// Avoid redefining flags if already registered (tests may call multiple times)
	if flag.Lookup("redis-addr") != nil {
		return
	}

	registerRedisFlags()
	registerMQTTFlags()
	registerLogFlags()
	registerAppFlags()
	registerWorkloadFlags()
	registerCircuitBreakerFlags()
	registerSupervisionFlags()
}

// ApplyFlags applies command-line flag values to the configuration
func ApplyFlags(cfg *Config) {
	// Parse flags if not already parsed
	if !flag.Parsed() {
		flag.Parse()
	}

	applyRedisFlags(cfg)
	applyMQTTFlags(cfg)
	applyLogFlags(cfg)
	applyAppFlags(cfg)
	applyWorkloadFlags(cfg)
	applyCircuitBreakerFlags(cfg)
	applySupervisionFlags(cfg)
}

func registerRedisFlags() {
	flag.String("redis-addr", "", "Redis server address")
	flag.String("redis-password", "", "Redis server password")
	flag.Int("redis-db", -1, "Redis database")
	flag.String("redis-stream", "", "Redis stream name")
	flag.String("redis-group", "", "Redis consumer group name")
	flag.Int("redis-client-retries", -1, "Number of retries for Redis client connection")
	flag.Int("redis-client-retry-interval", -1, "Interval in seconds between Redis client connection retries")
}

func registerMQTTFlags() {
	flag.String("mqtt-broker", "", "MQTT broker address")
	flag.String("mqtt-client-id", "", "MQTT client ID")
	flag.String("mqtt-publish-topic", "", "MQTT topic for publishing messages")
	flag.Bool("mqtt-use-user-prefix", true, "Whether to prepend user prefix from certificate")
	flag.String("mqtt-custom-prefix", "", "Custom prefix to use if user prefix is disabled")
	flag.Int("mqtt-qos", -1, "MQTT QoS level")
	flag.String("mqtt-ca-cert", "", "Path to MQTT CA certificate file")
	flag.String("mqtt-client-cert", "", "Path to MQTT client certificate file")
	flag.String("mqtt-client-key", "", "Path to MQTT client key file")
	flag.Bool("mqtt-clean-session", false, "MQTT clean session")
}

func registerLogFlags() {
	flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.String("log-format", "", "Log format (text, json)")
}

func applyRedisFlags(cfg *Config) {
	if val := getFlagString("redis-addr"); val != "" {
		cfg.Redis.Addresses = []string{val}
	}
	if val := getFlagString("redis-password"); val != "" {
		cfg.Redis.Password = val
	}
	if val := getFlagInt("redis-db"); val >= 0 {
		cfg.Redis.DB = val
	}
	if val := getFlagString("redis-stream"); val != "" {
		cfg.Redis.StreamName = val
	}
	if val := getFlagString("redis-group"); val != "" {
		cfg.Redis.ConsumerGroup = val
	}
	if val := getFlagInt("redis-client-retries"); val >= 0 {
		cfg.Redis.MaxRetries = val
	}
	if val := getFlagInt("redis-client-retry-interval"); val > 0 {
		cfg.Redis.RetryInterval = time.Duration(val) * time.Second
	}
}

func applyMQTTFlags(cfg *Config) {
	if val := getFlagString("mqtt-broker"); val != "" {
		cfg.MQTT.Brokers = []string{val}
	}
	if val := getFlagString("mqtt-client-id"); val != "" {
		cfg.MQTT.ClientID = val
	}
	if val := getFlagString("mqtt-publish-topic"); val != "" {
		cfg.MQTT.Topics.PublishTopic = val
	}
	if f := flag.Lookup("mqtt-use-user-prefix"); f != nil {
		cfg.MQTT.Topics.UseUserPrefix = getFlagBool("mqtt-use-user-prefix")
	}
	if val := getFlagString("mqtt-custom-prefix"); val != "" {
		cfg.MQTT.Topics.CustomPrefix = val
	}
	if val := getFlagInt("mqtt-qos"); val >= 0 && val <= 2 {
		cfg.MQTT.QoS = byte(val)
	}
	if val := getFlagString("mqtt-ca-cert"); val != "" {
		cfg.MQTT.TLS.CACertFile = val
		cfg.MQTT.TLS.Enabled = true
	}
	if val := getFlagString("mqtt-client-cert"); val != "" {
		cfg.MQTT.TLS.ClientCertFile = val
		cfg.MQTT.TLS.Enabled = true
	}
	if val := getFlagString("mqtt-client-key"); val != "" {
		cfg.MQTT.TLS.ClientKeyFile = val
		cfg.MQTT.TLS.Enabled = true
	}
	if f := flag.Lookup("mqtt-clean-session"); f != nil {
		if val := getFlagBool("mqtt-clean-session"); val {
			cfg.MQTT.CleanSession = val
		}
	}
}

func applyLogFlags(cfg *Config) {
	if val := getFlagString("log-level"); val != "" {
		cfg.App.LogLevel = val
	}
	if val := getFlagString("log-format"); val != "" {
		cfg.App.LogFormat = val
	}
}

func getFlagString(name string) string {
	f := flag.Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

func getFlagInt(name string) int {
	f := flag.Lookup(name)
	if f == nil {
		return -1
	}
	if getter, ok := f.Value.(flag.Getter); ok {
		if val, ok := getter.Get().(int); ok {
			return val
		}
	}
	return -1
}

func getFlagFloat64(name string) float64 {
	f := flag.Lookup(name)
	if f == nil {
		return -1
	}
	if getter, ok := f.Value.(flag.Getter); ok {
		if val, ok := getter.Get().(float64); ok {
			return val
		}
	}
	return -1
}

func getFlagBool(name string) bool {
	f := flag.Lookup(name)
	if f == nil {
		return false
	}
	if getter, ok := f.Value.(flag.Getter); ok {
		if val, ok := getter.Get().(bool); ok {
			return val
		}
	}
	return false
}

func registerAppFlags() {
	flag.String("app-name", "", "Application name")
	flag.String("app-env", "", "Application environment (production, staging, etc.)")
	flag.Int("app-shutdown-timeout", -1, "Application shutdown timeout in seconds")
	flag.Int("app-pending-ops-grace-ms", -1, "Grace period for pending ops in milliseconds")
}

func applyAppFlags(cfg *Config) {
	if v := getFlagString("app-name"); v != "" {
		cfg.App.Name = v
	}
	if v := getFlagString("app-env"); v != "" {
		cfg.App.Environment = v
	}
	if v := getFlagInt("app-shutdown-timeout"); v > 0 {
		cfg.App.ShutdownTimeout = time.Duration(v) * time.Second
	}
	if v := getFlagInt("app-pending-ops-grace-ms"); v > 0 {
		cfg.App.PendingOpsGrace = fromMillis(int64(v))
	}
}

func registerWorkloadFlags() {
	flag.Int("workload-buffer-size", -1, "Ring buffer size (will be rounded up to next power of 2)")
	flag.Int("workload-batch-size", -1, "Number of messages read from Redis per batch")
	flag.Int("workload-batch-timeout-ms", -1, "Batch read timeout in milliseconds")
}

func applyWorkloadFlags(cfg *Config) {
	if v := getFlagInt("workload-buffer-size"); v > 0 {
		cfg.Workload.BufferSize = nextPowerOf2(v)
	}
	if v := getFlagInt("workload-batch-size"); v > 0 {
		cfg.Workload.BatchSize = v
	}
	if v := getFlagInt("workload-batch-timeout-ms"); v > 0 {
		cfg.Workload.BatchTimeout = fromMillis(int64(v))
	}
}

func registerCircuitBreakerFlags() {
	flag.Bool("cb-enabled", true, "Enable circuit breaker")
	flag.Float64("cb-error-threshold", -1, "Error threshold percentage for circuit breaker")
	flag.Int("cb-success-threshold", -1, "Success threshold to close circuit")
	flag.Int("cb-timeout", -1, "Circuit breaker timeout in seconds")
	flag.Int("cb-max-concurrent", -1, "Max concurrent calls allowed")
	flag.Int("cb-request-volume", -1, "Request volume threshold")
}

func applyCircuitBreakerFlags(cfg *Config) {
	if f := flag.Lookup("cb-enabled"); f != nil {
		cfg.CircuitBreaker.Enabled = getFlagBool("cb-enabled")
	}
	if v := getFlagFloat64("cb-error-threshold"); v > 0 {
		cfg.CircuitBreaker.ErrorThreshold = v
	}
	if v := getFlagInt("cb-success-threshold"); v > 0 {
		cfg.CircuitBreaker.SuccessThreshold = v
	}
	if v := getFlagInt("cb-timeout"); v > 0 {
		cfg.CircuitBreaker.Timeout = time.Duration(v) * time.Second
	}
	if v := getFlagInt("cb-max-concurrent"); v > 0 {
		cfg.CircuitBreaker.MaxConcurrentCalls = v
	}
	if v := getFlagInt("cb-request-volume"); v > 0 {
		cfg.CircuitBreaker.RequestVolumeThreshold = v
	}
}

func registerSupervisionFlags() {
	flag.String("supervision-root-strategy", "", "Root supervisor restart strategy (one_for_one|one_for_all|rest_for_one)")
	flag.Int("supervision-redundancy", -1, "Number of sibling instances per children group")
}

func applySupervisionFlags(cfg *Config) {
	if v := getFlagString("supervision-root-strategy"); v != "" {
		cfg.Supervision.RootStrategy = v
	}
	if v := getFlagInt("supervision-redundancy"); v > 0 {
		cfg.Supervision.Redundancy = v
	}
}

// PrintUsage prints the usage information for all flags.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
}
