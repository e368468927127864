package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// Handler receives inbound fleet traffic decoded off the wire.
type Handler interface {
	HandleRegister(ctx context.Context, req types.RegisterRequest) error
	HandleHeartbeat(ctx context.Context, hb types.Heartbeat)
	HandleUnregister(ctx context.Context, agentID string)
	HandleResult(ctx context.Context, result types.CommandResult)
}

// Listener subscribes to the shared fleet subjects and dispatches decoded
// messages to the handler. Malformed payloads are logged and dropped.
type Listener struct {
	nc      *nats.Conn
	handler Handler
	logger  *zap.Logger
	subs    []*nats.Subscription
}

// NewListener creates a listener over an established connection.
func NewListener(nc *nats.Conn, handler Handler, logger *zap.Logger) *Listener {
	return &Listener{nc: nc, handler: handler, logger: logger}
}

// Start subscribes to all inbound fleet subjects.
func (l *Listener) Start(ctx context.Context) error {
	subjects := []struct {
		subject string
		handle  nats.MsgHandler
	}{
		{SubjectRegister, func(msg *nats.Msg) { l.onRegister(ctx, msg) }},
		{SubjectHeartbeat, func(msg *nats.Msg) { l.onHeartbeat(ctx, msg) }},
		{SubjectUnregister, func(msg *nats.Msg) { l.onUnregister(ctx, msg) }},
		{SubjectResult, func(msg *nats.Msg) { l.onResult(ctx, msg) }},
	}

	for _, s := range subjects {
		sub, err := l.nc.Subscribe(s.subject, s.handle)
		if err != nil {
			l.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
		}
		l.subs = append(l.subs, sub)
	}

	l.logger.Info("Fleet listener started")
	return nil
}

// Stop unsubscribes from all fleet subjects.
func (l *Listener) Stop() {
	for _, sub := range l.subs {
		_ = sub.Unsubscribe()
	}
	l.subs = nil
}

func (l *Listener) onRegister(ctx context.Context, msg *nats.Msg) {
	var req types.RegisterRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Error("Failed to unmarshal register request", zap.Error(err))
		return
	}

	err := l.handler.HandleRegister(ctx, req)
	if err != nil {
		l.logger.Warn("Agent registration rejected",
			zap.String("agent_id", req.AgentID),
			zap.Error(err))
	}
	l.reply(msg, err)
}

func (l *Listener) onHeartbeat(ctx context.Context, msg *nats.Msg) {
	var hb types.Heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		l.logger.Error("Failed to unmarshal heartbeat", zap.Error(err))
		return
	}
	l.handler.HandleHeartbeat(ctx, hb)
}

func (l *Listener) onUnregister(ctx context.Context, msg *nats.Msg) {
	var req UnregisterRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Error("Failed to unmarshal unregister request", zap.Error(err))
		return
	}
	l.handler.HandleUnregister(ctx, req.AgentID)
}

func (l *Listener) onResult(ctx context.Context, msg *nats.Msg) {
	var result types.CommandResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		l.logger.Error("Failed to unmarshal command result", zap.Error(err))
		return
	}
	l.handler.HandleResult(ctx, result)
}

// reply answers request-style messages when the sender asked for an ack.
func (l *Listener) reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}

	ack := Ack{Status: "ok"}
	if err != nil {
		ack = Ack{Status: "error", Error: err.Error()}
	}
	data, merr := json.Marshal(ack)
	if merr != nil {
		return
	}
	if perr := msg.Respond(data); perr != nil {
		l.logger.Warn("Failed to send ack", zap.Error(perr))
	}
}
