package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Data holds the optional external clients. Absent configuration leaves
// the corresponding client nil; callers must treat every client as
// optional.
type Data struct {
	Redis    *redis.Client
	Kafka    *kafka.Writer
	RabbitMQ *amqp.Connection
	ES       *elasticsearch.Client

	cfg    *Config
	logger *zap.Logger
	closed bool
	mu     sync.Mutex
}

// New connects the configured integrations.
func New(cfg *Config, logger *zap.Logger) (*Data, error) {
	d := &Data{cfg: cfg, logger: logger}
	if cfg == nil {
		return d, nil
	}

	var err error

	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		d.Redis, err = newRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		d.Kafka = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
		logger.Info("Kafka writer configured",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.RabbitMQ != nil && cfg.RabbitMQ.URL != "" {
		d.RabbitMQ, err = amqp.DialConfig(cfg.RabbitMQ.URL, amqp.Config{
			Heartbeat: cfg.RabbitMQ.Heartbeat,
			Vhost:     cfg.RabbitMQ.Vhost,
		})
		if err != nil {
			return nil, fmt.Errorf("rabbitmq connection error: %w", err)
		}
		logger.Info("Connected to rabbitmq")
	}

	if cfg.Elasticsearch != nil && len(cfg.Elasticsearch.Addresses) > 0 {
		d.ES, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("elasticsearch client error: %w", err)
		}
		logger.Info("Elasticsearch client configured",
			zap.Strings("addresses", cfg.Elasticsearch.Addresses))
	}

	return d, nil
}

// newRedis creates and pings a redis client
func newRedis(cfg *RedisConfig) (*redis.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect error: %w", err)
	}
	return rc, nil
}

// Close closes all connected clients.
func (d *Data) Close() (errs []error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, errors.New("redis close error: "+err.Error()))
		}
		d.Redis = nil
	}

	if d.Kafka != nil {
		if err := d.Kafka.Close(); err != nil {
			errs = append(errs, errors.New("kafka close error: "+err.Error()))
		}
		d.Kafka = nil
	}

	if d.RabbitMQ != nil {
		if !d.RabbitMQ.IsClosed() {
			if err := d.RabbitMQ.Close(); err != nil {
				errs = append(errs, errors.New("rabbitmq close error: "+err.Error()))
			}
		}
		d.RabbitMQ = nil
	}

	d.closed = true
	return errs
}
