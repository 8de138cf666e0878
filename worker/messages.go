package worker

import (
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/trainer"
)

const (
	taskTopicTemplate   = "cohort/workers/%s/tasks"
	resultTopicTemplate = "cohort/results/%s"

	StatusAlive   = "alive"
	StatusOffline = "offline"
)

func TaskTopic(workerID string) string {
	return fmt.Sprintf(taskTopicTemplate, workerID)
}

func ResultTopic(taskID string) string {
	return fmt.Sprintf(resultTopicTemplate, taskID)
}

type TaskMessage struct {
	Task    trainer.Task `cbor:"task"`
	ReplyTo string       `cbor:"reply_to"`
}

// ResultMessage carries either an Update or the error text of a failed task.
type ResultMessage struct {
	TaskID   string    `cbor:"task_id"`
	WorkerID string    `cbor:"worker_id"`
	Update   fl.Update `cbor:"update"`
	Error    string    `cbor:"error,omitempty"`
}

type Heartbeat struct {
	WorkerID  string    `cbor:"worker_id"       json:"worker_id"`
	Status    string    `cbor:"status"          json:"status"`
	Timestamp time.Time `cbor:"timestamp"       json:"timestamp"`
	Usage     *Usage    `cbor:"usage,omitempty" json:"usage,omitempty"`
}
