package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnvironment loads configuration from environment variables
func LoadFromEnvironment(cfg *Config) {
	applyAppEnv(cfg)
	applyRedisEnv(cfg)
	applyMQTTEnv(cfg)
	applyWorkloadEnv(cfg)
	applyCircuitBreakerEnv(cfg)
	applySupervisionEnv(cfg)
}

// --- App ---

func applyAppEnv(cfg *Config) {
	if val := os.Getenv("APP_NAME"); val != "" {
		cfg.App.Name = val
	}
	if val := os.Getenv("APP_ENV"); val != "" {
		cfg.App.Environment = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.App.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.App.LogFormat = val
	}
	if val := getEnvDuration("APP_SHUTDOWN_TIMEOUT"); val != 0 {
		cfg.App.ShutdownTimeout = val
	}
	if val := getEnvDuration("APP_PENDING_OPS_GRACE"); val != 0 {
		cfg.App.PendingOpsGrace = val
	}
}

// --- Redis ---

func applyRedisEnv(cfg *Config) {
	applyRedisBasicsEnv(cfg)
	applyRedisTimeoutsEnv(cfg)
	applyRedisPoolEnv(cfg)
}

func applyRedisBasicsEnv(cfg *Config) {
	if val := getEnvStringSlice("REDIS_ADDRESSES"); len(val) > 0 {
		cfg.Redis.Addresses = val
	}
	if val := os.Getenv("REDIS_USERNAME"); val != "" {
		cfg.Redis.Username = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := getEnvInt("REDIS_DB"); val >= 0 {
		cfg.Redis.DB = val
	}
	if val := os.Getenv("REDIS_MASTER_NAME"); val != "" {
		cfg.Redis.MasterName = val
	}
	if val := os.Getenv("REDIS_STREAM"); val != "" {
		cfg.Redis.StreamName = val
	}
	if val := os.Getenv("REDIS_CONSUMER_GROUP"); val != "" {
		cfg.Redis.ConsumerGroup = val
	}
	if val := getEnvInt("REDIS_MAX_RETRIES"); val > 0 {
		cfg.Redis.MaxRetries = val
	}
	if val := getEnvDuration("REDIS_RETRY_INTERVAL"); val != 0 {
		cfg.Redis.RetryInterval = val
	}
}

func applyRedisTimeoutsEnv(cfg *Config) {
	if val := getEnvDuration("REDIS_CONNECT_TIMEOUT"); val != 0 {
		cfg.Redis.ConnectTimeout = val
	}
	if val := getEnvDuration("REDIS_READ_TIMEOUT"); val != 0 {
		cfg.Redis.ReadTimeout = val
	}
	if val := getEnvDuration("REDIS_WRITE_TIMEOUT"); val != 0 {
		cfg.Redis.WriteTimeout = val
	}
}

func applyRedisPoolEnv(cfg *Config) {
	if val := getEnvInt("REDIS_POOL_SIZE"); val > 0 {
		cfg.Redis.PoolSize = val
	}
	if val := getEnvInt("REDIS_MIN_IDLE_CONNS"); val > 0 {
		cfg.Redis.MinIdleConns = val
	}
	if val := getEnvDuration("REDIS_MAX_CONN_AGE"); val != 0 {
		cfg.Redis.ConnMaxLifetime = val
	}
	if val := getEnvDuration("REDIS_POOL_TIMEOUT"); val != 0 {
		cfg.Redis.PoolTimeout = val
	}
	if val := getEnvDuration("REDIS_IDLE_TIMEOUT"); val != 0 {
		cfg.Redis.ConnMaxIdleTime = val
	}
}

// --- MQTT ---

func applyMQTTEnv(cfg *Config) {
	applyMQTTBasicsEnv(cfg)
	applyMQTTSecurityTLSEnv(cfg)
	applyMQTTTopicsEnv(cfg)
	applyMQTTPerformanceEnv(cfg)
}

func applyMQTTBasicsEnv(cfg *Config) {
	if val := getEnvStringSlice("MQTT_BROKERS"); len(val) > 0 {
		cfg.MQTT.Brokers = val
	}
	if val := os.Getenv("MQTT_CLIENT_ID"); val != "" {
		cfg.MQTT.ClientID = val
	}
	if val := getEnvInt("MQTT_QOS"); val >= 0 && val <= 2 {
		cfg.MQTT.QoS = byte(val)
	}
	if val := getEnvDuration("MQTT_KEEP_ALIVE"); val != 0 {
		cfg.MQTT.KeepAlive = val
	}
	if val := getEnvDuration("MQTT_CONNECT_TIMEOUT"); val != 0 {
		cfg.MQTT.ConnectTimeout = val
	}
	if val := getEnvDuration("MQTT_MAX_RECONNECT_DELAY"); val != 0 {
		cfg.MQTT.MaxReconnectDelay = val
	}
	if val := os.Getenv("MQTT_CLEAN_SESSION"); val != "" {
		cfg.MQTT.CleanSession = getEnvBool("MQTT_CLEAN_SESSION")
	}
	if val := os.Getenv("MQTT_ORDER_MATTERS"); val != "" {
		cfg.MQTT.OrderMatters = getEnvBool("MQTT_ORDER_MATTERS")
	}
}

func applyMQTTSecurityTLSEnv(cfg *Config) {
	if val := os.Getenv("MQTT_TLS_ENABLED"); val != "" {
		cfg.MQTT.TLS.Enabled = getEnvBool("MQTT_TLS_ENABLED")
	}
	if val := os.Getenv("MQTT_CA_CERT"); val != "" {
		cfg.MQTT.TLS.CACertFile = val
	}
	if val := os.Getenv("MQTT_CLIENT_CERT"); val != "" {
		cfg.MQTT.TLS.ClientCertFile = val
	}
	if val := os.Getenv("MQTT_CLIENT_KEY"); val != "" {
		cfg.MQTT.TLS.ClientKeyFile = val
	}
	if val := os.Getenv("MQTT_TLS_SERVER_NAME"); val != "" {
		cfg.MQTT.TLS.ServerName = val
	}
}

func applyMQTTTopicsEnv(cfg *Config) {
	if val := os.Getenv("MQTT_PUBLISH_TOPIC"); val != "" {
		cfg.MQTT.Topics.PublishTopic = val
	}
	if val := os.Getenv("MQTT_USE_USER_PREFIX"); val != "" {
		cfg.MQTT.Topics.UseUserPrefix = getEnvBool("MQTT_USE_USER_PREFIX")
	}
	if val := os.Getenv("MQTT_CUSTOM_PREFIX"); val != "" {
		cfg.MQTT.Topics.CustomPrefix = val
	}
	if val := os.Getenv("MQTT_RETAIN_MESSAGES"); val != "" {
		cfg.MQTT.Topics.RetainMessages = getEnvBool("MQTT_RETAIN_MESSAGES")
	}
}

func applyMQTTPerformanceEnv(cfg *Config) {
	if val := getEnvInt("MQTT_MESSAGE_CHANNEL_DEPTH"); val > 0 {
		cfg.MQTT.MessageChannelDepth = val
	}
	if val := getEnvDuration("MQTT_WRITE_TIMEOUT"); val != 0 {
		cfg.MQTT.WriteTimeout = val
	}
}

// --- Workload ---

func applyWorkloadEnv(cfg *Config) {
	if val := getEnvInt("WORKLOAD_BUFFER_SIZE"); val > 0 {
		cfg.Workload.BufferSize = nextPowerOf2(val)
	}
	if val := getEnvInt("WORKLOAD_BATCH_SIZE"); val > 0 {
		cfg.Workload.BatchSize = val
	}
	if val := getEnvDuration("WORKLOAD_BATCH_TIMEOUT"); val != 0 {
		cfg.Workload.BatchTimeout = val
	}
}

// --- Circuit Breaker ---

func applyCircuitBreakerEnv(cfg *Config) {
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		cfg.CircuitBreaker.Enabled = getEnvBool("CIRCUIT_BREAKER_ENABLED")
	}
	if val := getEnvFloat64("CIRCUIT_BREAKER_ERROR_THRESHOLD"); val > 0 {
		cfg.CircuitBreaker.ErrorThreshold = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val > 0 {
		cfg.CircuitBreaker.SuccessThreshold = val
	}
	if val := getEnvDuration("CIRCUIT_BREAKER_TIMEOUT"); val != 0 {
		cfg.CircuitBreaker.Timeout = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_MAX_CONCURRENT"); val > 0 {
		cfg.CircuitBreaker.MaxConcurrentCalls = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_REQUEST_VOLUME"); val > 0 {
		cfg.CircuitBreaker.RequestVolumeThreshold = val
	}
}

// --- Supervision ---

func applySupervisionEnv(cfg *Config) {
	if val := os.Getenv("SUPERVISION_ROOT_STRATEGY"); val != "" {
		cfg.Supervision.RootStrategy = val
	}
	if val := getEnvInt("SUPERVISION_REDUNDANCY"); val > 0 {
		cfg.Supervision.Redundancy = val
	}
}

// Helper functions

func getEnvInt(key string) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return -1
}

func getEnvFloat64(key string) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return 0
}

func getEnvBool(key string) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return false
}

func getEnvDuration(key string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return 0
}

func getEnvStringSlice(key string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return nil
}
