package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/fareidzulkifli/task-manager/domain"
)

type commandQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Queue writes patches behind through an Azure storage queue. A Consumer
// applies them to the system of record later, so the records returned by
// PatchTask and PatchProject are always zero values.
type Queue struct {
	commands commandQueue
	now      func() time.Time
}

func queueClientOptions() *azqueue.ClientOptions {
	return &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewQueueClient connects to a storage queue.
func NewQueueClient(connStr, name string) (*azqueue.QueueClient, error) {
	return azqueue.NewQueueClientFromConnectionString(connStr, name, queueClientOptions())
}

// NewQueue creates the write side of the patch queue.
func NewQueue(client *azqueue.QueueClient) *Queue {
	return &Queue{commands: client, now: time.Now}
}

// PatchTask enqueues a task patch command.
func (q *Queue) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	cmd, err := domain.NewTaskPatchCommand(uuid.NewString(), id, p, q.now().UnixNano())
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{}, q.enqueue(ctx, cmd)
}

// PatchProject enqueues a project patch command.
func (q *Queue) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	cmd, err := domain.NewProjectPatchCommand(uuid.NewString(), id, p, q.now().UnixNano())
	if err != nil {
		return domain.Project{}, err
	}
	return domain.Project{}, q.enqueue(ctx, cmd)
}

func (q *Queue) enqueue(ctx context.Context, cmd domain.Command) error {
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = q.commands.EnqueueMessage(ctx, string(data), nil)
	return err
}

// EnsureQueue creates the queue if it does not exist yet.
func EnsureQueue(ctx context.Context, client *azqueue.QueueClient) error {
	if _, err := client.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}
