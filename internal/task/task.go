package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a unit of background work to be processed
type Task interface {
	ID() uuid.UUID
	Type() string
	Payload() []byte
	Status() TaskStatus
	Execute(ctx context.Context) error
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	GetChannel() <-chan Task
	// Release is called when a worker takes a task off the channel.
	Release(task Task)
}

// TaskQueueWriter provides write access to the task queue
// allowing services to enqueue tasks for processing
type TaskQueueWriter interface {
	// Enqueue returns an error if the queue is full or closed
	Enqueue(task Task) error
	Close()
}

// baseTask carries the identity and status shared by every task type.
type baseTask struct {
	id       uuid.UUID
	taskType string
	payload  []byte

	mu     sync.Mutex
	status TaskStatus
}

func newBaseTask(taskType string, payload []byte) *baseTask {
	return &baseTask{
		id:       uuid.New(),
		taskType: taskType,
		payload:  payload,
		status:   TaskStatusPending,
	}
}

func (t *baseTask) ID() uuid.UUID   { return t.id }
func (t *baseTask) Type() string    { return t.taskType }
func (t *baseTask) Payload() []byte { return t.payload }

func (t *baseTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *baseTask) setStatus(s TaskStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// run wraps fn with status bookkeeping.
func (t *baseTask) run(fn func() error) error {
	t.setStatus(TaskStatusProcessing)
	if err := fn(); err != nil {
		t.setStatus(TaskStatusFailed)
		return err
	}
	t.setStatus(TaskStatusCompleted)
	return nil
}
