package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/cohort/pkg/mqtt"
)

// Agent is the serving side of Remote: it trains every task published on
// TaskTopic(ID()) with a Local worker and replies on the task's ReplyTo topic.
type Agent struct {
	local  *Local
	pubsub mqtt.PubSub
	sem    chan struct{}
	usage  *usageMonitor
	logger *slog.Logger
}

// NewAgent returns an Agent running at most concurrency tasks at a time.
// An empty id is replaced by a generated name.
func NewAgent(id string, pubsub mqtt.PubSub, concurrency int, logger *slog.Logger) *Agent {
	a := &Agent{
		local:  NewLocal(id),
		pubsub: pubsub,
		sem:    make(chan struct{}, max(concurrency, 1)),
		logger: logger,
	}

	usage, err := newUsageMonitor()
	if err != nil {
		logger.Warn("resource usage reporting disabled", slog.Any("error", err))
	}
	a.usage = usage

	return a
}

func (a *Agent) ID() string {
	return a.local.ID()
}

func (a *Agent) Start(ctx context.Context) error {
	if err := a.pubsub.Subscribe(ctx, TaskTopic(a.ID()), a.handle(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to task topic: %w", err)
	}

	return a.announce(ctx, StatusAlive)
}

// Heartbeat publishes an alive message every interval until ctx is done,
// then announces the agent offline.
func (a *Agent) Heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.Stop(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := a.announce(ctx, StatusAlive); err != nil {
				a.logger.Warn("failed to publish heartbeat", slog.Any("error", err))
			}
		}
	}
}

func (a *Agent) Stop(ctx context.Context) error {
	if err := a.pubsub.Unsubscribe(ctx, TaskTopic(a.ID())); err != nil {
		return err
	}

	return a.announce(ctx, StatusOffline)
}

func (a *Agent) announce(ctx context.Context, status string) error {
	hb := Heartbeat{
		WorkerID:  a.ID(),
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if status == StatusAlive && a.usage != nil {
		u := a.usage.Collect(ctx)
		u.ActiveTasks = len(a.sem)
		u.Capacity = cap(a.sem)
		hb.Usage = &u
	}

	return a.pubsub.Publish(ctx, mqtt.AliveTopic, hb)
}

func (a *Agent) handle(ctx context.Context) mqtt.Handler {
	return func(_ string, payload []byte) error {
		var msg TaskMessage
		if err := mqtt.Decode(payload, &msg); err != nil {
			return fmt.Errorf("invalid task message: %w", err)
		}
		if msg.ReplyTo == "" {
			return fmt.Errorf("task %s has no reply topic", msg.Task.ID)
		}

		go a.run(ctx, msg)

		return nil
	}
}

func (a *Agent) run(ctx context.Context, msg TaskMessage) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-a.sem }()

	start := time.Now()
	res := ResultMessage{TaskID: msg.Task.ID, WorkerID: a.ID()}
	u, err := a.local.Train(ctx, msg.Task)
	args := []any{
		slog.Group("task",
			slog.String("id", msg.Task.ID),
			slog.String("fit_id", msg.Task.FitID),
			slog.Int("round", msg.Task.Round),
			slog.Int("shard", msg.Task.Shard.ID),
		),
		slog.String("duration", time.Since(start).String()),
	}
	if err != nil {
		res.Error = err.Error()
		args = append(args, slog.Any("error", err))
		a.logger.Warn("Training task failed", args...)
	} else {
		res.Update = u
		a.logger.Info("Training task completed successfully", args...)
	}

	if err := a.pubsub.Publish(ctx, msg.ReplyTo, res); err != nil {
		a.logger.Error("failed to publish task result", slog.String("topic", msg.ReplyTo), slog.Any("error", err))
	}
}
