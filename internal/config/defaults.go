package config

import (
	"os"
	"runtime"
	"time"
)

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		App:            defaultApp(),
		Redis:          defaultRedis(),
		MQTT:           defaultMQTT(hostname),
		Workload:       defaultWorkload(),
		CircuitBreaker: defaultCircuitBreaker(),
		Supervision:    defaultSupervision(),
	}
}

func defaultApp() AppConfig {
	return AppConfig{
		Name:            "bastion-demo",
		Environment:     "production",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
		PendingOpsGrace: 500 * time.Millisecond,
	}
}

func defaultRedis() RedisConfig {
	return RedisConfig{
		Addresses:       []string{"localhost:6379"},
		Password:        "",
		DB:              0,
		StreamName:      "bastion-stream",
		ConsumerGroup:   "bastion-group",
		MaxRetries:      5,
		RetryInterval:   1 * time.Second,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        defaultPoolSize(),
		MinIdleConns:    runtime.NumCPU(),
		ConnMaxLifetime: 30 * time.Minute,
		PoolTimeout:     5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func defaultMQTT(hostname string) MQTTConfig {
	return MQTTConfig{
		Brokers:           []string{"tcp://localhost:1883"},
		ClientID:          generateClientIDFor(hostname),
		QoS:               2,
		KeepAlive:         30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		MaxReconnectDelay: 2 * time.Minute,
		CleanSession:      true,
		OrderMatters:      true,
		TLS: TLSConfig{
			Enabled:        false,
			CACertFile:     "",
			ClientCertFile: "",
			ClientKeyFile:  "",
			ServerName:     "",
		},
		Topics: TopicConfig{
			PublishTopic:   "bastion/demo",
			UseUserPrefix:  true,
			CustomPrefix:   "",
			RetainMessages: false,
		},
		MessageChannelDepth: 0,
		WriteTimeout:        5 * time.Second,
	}
}

func generateClientIDFor(hostname string) string {
	return "bastion-demo-" + hostname
}

func defaultWorkload() WorkloadConfig {
	return WorkloadConfig{
		BufferSize:   nextPowerOf2(1048576), // 1M messages
		BatchSize:    1000,
		BatchTimeout: 100 * time.Millisecond,
	}
}

func defaultCircuitBreaker() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:                true,
		ErrorThreshold:         50.0,
		SuccessThreshold:       5,
		Timeout:                30 * time.Second,
		MaxConcurrentCalls:     100,
		RequestVolumeThreshold: 20,
	}
}

func defaultSupervision() SupervisionConfig {
	return SupervisionConfig{
		RootStrategy: StrategyOneForAll,
		Redundancy:   1,
	}
}
