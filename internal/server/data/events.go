package data

import (
	"context"
	"encoding/json"
	"time"

	"fleetcmd/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ExecutionEvent is the audit record published for every execution
// lifecycle transition.
type ExecutionEvent struct {
	Event     string        `json:"event"`
	AgentID   string        `json:"agent_id"`
	CommandID string        `json:"command_id"`
	Command   string        `json:"command"`
	State     string        `json:"state"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventPublisher streams execution lifecycle events to kafka and/or
// rabbitmq, whichever is configured. Publishing is best-effort: a broker
// failure is logged, never propagated into the dispatch or poll path.
type EventPublisher struct {
	kafka    *kafka.Writer
	rabbitmq *amqp.Connection
	exchange string
	logger   *zap.Logger
}

// NewEventPublisher creates a publisher over the configured brokers.
// Returns nil when neither broker is configured.
func NewEventPublisher(d *Data, logger *zap.Logger) *EventPublisher {
	if d == nil || (d.Kafka == nil && d.RabbitMQ == nil) {
		return nil
	}

	exchange := "fleetcmd.executions"
	if d.cfg != nil && d.cfg.RabbitMQ != nil && d.cfg.RabbitMQ.Exchange != "" {
		exchange = d.cfg.RabbitMQ.Exchange
	}

	return &EventPublisher{
		kafka:    d.Kafka,
		rabbitmq: d.RabbitMQ,
		exchange: exchange,
		logger:   logger,
	}
}

// PublishExecutionEvent implements the tracker's event sink.
func (p *EventPublisher) PublishExecutionEvent(ctx context.Context, event string, exec *types.CommandExecution) {
	ev := ExecutionEvent{
		Event:     event,
		AgentID:   exec.AgentID,
		CommandID: exec.CommandID,
		Command:   exec.Command,
		State:     string(exec.State),
		Timestamp: time.Now(),
	}
	if exec.Result != nil {
		exitCode := exec.Result.ExitCode
		ev.ExitCode = &exitCode
		ev.Duration = exec.Result.Duration
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to marshal execution event", zap.Error(err))
		return
	}

	if p.kafka != nil {
		if err := p.kafka.WriteMessages(ctx, kafka.Message{
			Key:   []byte(exec.AgentID),
			Value: body,
		}); err != nil {
			p.logger.Warn("Failed to publish execution event to kafka",
				zap.String("command_id", exec.CommandID),
				zap.Error(err))
		}
	}

	if p.rabbitmq != nil {
		p.publishRabbit(ctx, event, body, exec.CommandID)
	}
}

func (p *EventPublisher) publishRabbit(ctx context.Context, routingKey string, body []byte, commandID string) {
	ch, err := p.rabbitmq.Channel()
	if err != nil {
		p.logger.Warn("Failed to open rabbitmq channel", zap.Error(err))
		return
	}
	defer func() {
		_ = ch.Close()
	}()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("Failed to publish execution event to rabbitmq",
			zap.String("command_id", commandID),
			zap.Error(err))
	}
}
