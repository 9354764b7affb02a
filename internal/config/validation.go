package config

import (
	"fmt"
	"math"
	"os"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateApp(c); err != nil {
		return err
	}
	if err := validateRedis(c); err != nil {
		return err
	}
	if err := validateMQTT(c); err != nil {
		return err
	}
	if err := validateWorkload(c); err != nil {
		return err
	}
	if err := validateCircuitBreaker(c); err != nil {
		return err
	}
	if err := validateSupervision(c); err != nil {
		return err
	}
	return nil
}

// --- App ---

func validateApp(c *Config) error {
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if !isValidLogLevel(c.App.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.App.LogLevel)
	}
	if !isValidLogFormat(c.App.LogFormat) {
		return fmt.Errorf("invalid log format: %s", c.App.LogFormat)
	}
	if c.App.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.App.PendingOpsGrace < 0 {
		return fmt.Errorf("pending ops grace must be non-negative")
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "json", "text":
		return true
	default:
		return false
	}
}

// --- Redis ---

func validateRedis(c *Config) error {
	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis db must be non-negative")
	}
	if c.Redis.StreamName == "" {
		return fmt.Errorf("redis stream name cannot be empty")
	}
	if c.Redis.ConsumerGroup == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("redis max retries must be non-negative")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool size must be positive")
	}
	return nil
}

// --- MQTT + TLS ---

func validateMQTT(c *Config) error {
	if len(c.MQTT.Brokers) == 0 {
		return fmt.Errorf("at least one mqtt broker is required")
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt client id cannot be empty")
	}
	// SA4003: QoS is an unsigned byte; only upper bound check is meaningful
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.PublishTopic == "" {
		return fmt.Errorf("mqtt publish topic cannot be empty")
	}

	if c.MQTT.TLS.Enabled {
		if err := validateTLS(&c.MQTT.TLS); err != nil {
			return err
		}
	}
	return nil
}

func validateTLS(tls *TLSConfig) error {
	if tls.CACertFile == "" {
		return fmt.Errorf("ca certificate file is required when tls is enabled")
	}
	if tls.ClientCertFile == "" {
		return fmt.Errorf("client certificate file is required when tls is enabled")
	}
	if tls.ClientKeyFile == "" {
		return fmt.Errorf("client key file is required when tls is enabled")
	}

	// Check if files exist
	if _, err := os.Stat(tls.CACertFile); err != nil {
		return fmt.Errorf("ca certificate file not found: %w", err)
	}
	if _, err := os.Stat(tls.ClientCertFile); err != nil {
		return fmt.Errorf("client certificate file not found: %w", err)
	}
	if _, err := os.Stat(tls.ClientKeyFile); err != nil {
		return fmt.Errorf("client key file not found: %w", err)
	}
	return nil
}

// --- Workload ---

func validateWorkload(c *Config) error {
	if c.Workload.BufferSize <= 0 {
		return fmt.Errorf("workload buffer size must be positive")
	}
	// Enforce 32-bit limit for ring-buffer capacity conversions
	if c.Workload.BufferSize > int(math.MaxUint32) {
		return fmt.Errorf("workload buffer size exceeds 32-bit limit")
	}
	if !isPowerOfTwo(c.Workload.BufferSize) {
		return fmt.Errorf("workload buffer size must be a power of 2")
	}
	if c.Workload.BatchSize <= 0 {
		return fmt.Errorf("workload batch size must be positive")
	}
	if c.Workload.BatchSize > c.Workload.BufferSize {
		return fmt.Errorf("workload batch size cannot exceed buffer size")
	}
	if c.Workload.BatchTimeout <= 0 {
		return fmt.Errorf("workload batch timeout must be positive")
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// --- Circuit Breaker ---

func validateCircuitBreaker(c *Config) error {
	if !c.CircuitBreaker.Enabled {
		return nil
	}
	if c.CircuitBreaker.ErrorThreshold <= 0 || c.CircuitBreaker.ErrorThreshold > 100 {
		return fmt.Errorf("circuit breaker error threshold must be between 0 and 100")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit breaker success threshold must be positive")
	}
	if c.CircuitBreaker.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("circuit breaker max concurrent calls must be positive")
	}
	if c.CircuitBreaker.RequestVolumeThreshold <= 0 {
		return fmt.Errorf("circuit breaker request volume threshold must be positive")
	}
	return nil
}

// --- Supervision ---

func validateSupervision(c *Config) error {
	switch c.Supervision.RootStrategy {
	case StrategyOneForOne, StrategyOneForAll, StrategyRestForOne:
	default:
		return fmt.Errorf("invalid supervision root strategy: %s", c.Supervision.RootStrategy)
	}
	if c.Supervision.Redundancy <= 0 {
		return fmt.Errorf("supervision redundancy must be positive")
	}
	return nil
}
