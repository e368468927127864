package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fleetcmd/internal/agent/collector"
	"fleetcmd/internal/agent/config"
	"fleetcmd/internal/agent/executor"
	"fleetcmd/internal/retry"
	"fleetcmd/internal/transport"
	"fleetcmd/internal/types"
	"fleetcmd/internal/version"
)

// Agent connects to the orchestration server, executes the commands
// delivered on its subject and reports heartbeats and results.
type Agent struct {
	cfg       *config.Config
	nc        *nats.Conn
	executor  *executor.Executor
	collector *collector.Collector
	logger    *zap.Logger

	sem    chan struct{}
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an agent from configuration.
func New(cfg *config.Config, logger *zap.Logger) *Agent {
	return &Agent{
		cfg: cfg,
		executor: executor.New(executor.Options{
			Shell:          cfg.Executor.Shell,
			DefaultTimeout: cfg.Executor.DefaultTimeout,
			MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		}, logger),
		collector: collector.New(logger),
		logger:    logger,
		sem:       make(chan struct{}, cfg.Executor.MaxConcurrent),
	}
}

// Start connects to the broker, registers with the server and begins
// serving commands and heartbeats.
func (a *Agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	nc, err := transport.Connect(&a.cfg.Transport, a.logger)
	if err != nil {
		return err
	}
	a.nc = nc

	if err := retry.Execute(ctx, registerRetry(), func(context.Context) error {
		return a.register()
	}); err != nil {
		nc.Close()
		return err
	}

	a.sub, err = nc.Subscribe(transport.AgentCommandSubject(a.cfg.Agent.ID), func(msg *nats.Msg) {
		a.onCommand(ctx, msg)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to command subject: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop(ctx)
	}()

	a.logger.Info("Agent started",
		zap.String("agent_id", a.cfg.Agent.ID),
		zap.String("hostname", a.cfg.Agent.Hostname))
	return nil
}

// Stop cancels in-flight commands, announces the disconnect and drains
// the connection after their results have been published.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.sub != nil {
		_ = a.sub.Unsubscribe()
	}

	if a.nc != nil && !a.nc.IsClosed() {
		data, err := json.Marshal(transport.UnregisterRequest{AgentID: a.cfg.Agent.ID})
		if err == nil {
			_ = a.nc.Publish(transport.SubjectUnregister, data)
			_ = a.nc.Flush()
		}
	}

	a.wg.Wait()

	if a.nc != nil {
		_ = a.nc.Drain()
	}
	a.logger.Info("Agent stopped", zap.String("agent_id", a.cfg.Agent.ID))
}

// registerRetry bounds registration attempts so a rejected agent fails
// fast instead of spinning for hours.
func registerRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

// register announces the agent and waits for the server's ack.
func (a *Agent) register() error {
	req := types.RegisterRequest{
		AgentID:   a.cfg.Agent.ID,
		Hostname:  a.cfg.Agent.Hostname,
		IPAddress: localIP(),
		OS:        runtime.GOOS,
		Version:   version.Version,
		Tags:      a.cfg.Agent.Tags,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal register request: %w", err)
	}

	msg, err := a.nc.Request(transport.SubjectRegister, data, a.cfg.Transport.ConnectTimeout)
	if err != nil {
		// The server may not be up yet. Fall back to fire-and-forget so
		// the agent still announces itself once the server subscribes.
		if err == nats.ErrNoResponders || err == nats.ErrTimeout {
			a.logger.Warn("Registration not acknowledged, continuing", zap.Error(err))
			return a.nc.Publish(transport.SubjectRegister, data)
		}
		return fmt.Errorf("failed to register: %w", err)
	}

	var ack transport.Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("failed to unmarshal registration ack: %w", err)
	}
	if ack.Status != "ok" {
		return fmt.Errorf("registration rejected: %s", ack.Error)
	}

	a.logger.Info("Registered with server", zap.String("agent_id", a.cfg.Agent.ID))
	return nil
}

// heartbeatLoop reports liveness and metrics at the configured interval.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Agent.HeartbeatInterval)
	defer ticker.Stop()

	a.sendHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	hb := types.Heartbeat{
		AgentID:   a.cfg.Agent.ID,
		Metrics:   a.collector.Collect(ctx),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(hb)
	if err != nil {
		a.logger.Error("Failed to marshal heartbeat", zap.Error(err))
		return
	}
	if err := a.nc.Publish(transport.SubjectHeartbeat, data); err != nil {
		a.logger.Warn("Failed to publish heartbeat", zap.Error(err))
	}
}

// onCommand executes one envelope. Execution runs off the subscription
// goroutine, bounded by the concurrency semaphore.
func (a *Agent) onCommand(ctx context.Context, msg *nats.Msg) {
	var env types.CommandEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		a.logger.Error("Failed to unmarshal command envelope", zap.Error(err))
		return
	}

	a.logger.Info("Command received",
		zap.String("command_id", env.CommandID),
		zap.Duration("timeout", env.Timeout))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		select {
		case a.sem <- struct{}{}:
			defer func() { <-a.sem }()
		case <-ctx.Done():
			return
		}

		result := a.executor.Execute(ctx, &env)
		a.publishResult(result)
	}()
}

func (a *Agent) publishResult(result *types.CommandResult) {
	data, err := json.Marshal(result)
	if err != nil {
		a.logger.Error("Failed to marshal result",
			zap.String("command_id", result.CommandID),
			zap.Error(err))
		return
	}
	if err := a.nc.Publish(transport.SubjectResult, data); err != nil {
		a.logger.Error("Failed to publish result",
			zap.String("command_id", result.CommandID),
			zap.Error(err))
		return
	}
	_ = a.nc.Flush()
}

// localIP returns the host's outbound interface address.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() {
		_ = conn.Close()
	}()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
