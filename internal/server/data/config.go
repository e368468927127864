package data

import "time"

// Config represents the optional data integrations. Every integration is
// disabled unless its connection settings are present.
type Config struct {
	Redis         *RedisConfig         `mapstructure:"redis"`
	Kafka         *KafkaConfig         `mapstructure:"kafka"`
	RabbitMQ      *RabbitMQConfig      `mapstructure:"rabbitmq"`
	Elasticsearch *ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// RedisConfig represents the presence mirror configuration
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PresenceTTL  time.Duration `mapstructure:"presence_ttl"`
}

// KafkaConfig represents the Kafka execution-event stream configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RabbitMQConfig represents the RabbitMQ execution-event configuration
type RabbitMQConfig struct {
	URL       string        `mapstructure:"url"`
	Exchange  string        `mapstructure:"exchange"`
	Vhost     string        `mapstructure:"vhost"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// ElasticsearchConfig represents the execution history index configuration
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}
