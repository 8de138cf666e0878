package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/google/uuid"
)

var _ Worker = (*Remote)(nil)

// Remote forwards tasks to the Agent subscribed on TaskTopic(id) and waits
// for its reply on a per-task result topic.
type Remote struct {
	id     string
	pubsub mqtt.PubSub
	logger *slog.Logger
}

func NewRemote(id string, pubsub mqtt.PubSub, logger *slog.Logger) *Remote {
	return &Remote{
		id:     id,
		pubsub: pubsub,
		logger: logger,
	}
}

func (r *Remote) ID() string {
	return r.id
}

func (r *Remote) Train(ctx context.Context, task trainer.Task) (fl.Update, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	replyTo := ResultTopic(task.ID)

	results := make(chan ResultMessage, 1)
	handler := func(_ string, payload []byte) error {
		var res ResultMessage
		if err := mqtt.Decode(payload, &res); err != nil {
			return err
		}
		if res.TaskID != task.ID {
			return fmt.Errorf("unexpected result for task %s", res.TaskID)
		}
		select {
		case results <- res:
		default:
		}

		return nil
	}

	if err := r.pubsub.Subscribe(ctx, replyTo, handler); err != nil {
		return fl.Update{}, fmt.Errorf("worker %s: subscribe: %w", r.id, err)
	}
	defer func() {
		if err := r.pubsub.Unsubscribe(context.WithoutCancel(ctx), replyTo); err != nil {
			r.logger.Warn("failed to unsubscribe from result topic", slog.String("topic", replyTo), slog.Any("error", err))
		}
	}()

	if err := r.pubsub.Publish(ctx, TaskTopic(r.id), TaskMessage{Task: task, ReplyTo: replyTo}); err != nil {
		return fl.Update{}, fmt.Errorf("worker %s: publish: %w", r.id, err)
	}

	select {
	case <-ctx.Done():
		return fl.Update{}, ctx.Err()
	case res := <-results:
		if res.Error != "" {
			return fl.Update{}, fmt.Errorf("worker %s: %w", r.id, pkgerrors.FromString(res.Error))
		}
		u := res.Update
		u.WorkerID = r.id
		u.ReceivedAt = time.Now().UTC()

		return u, nil
	}
}
