package board

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fareidzulkifli/task-manager/domain"
)

const tracerName = "github.com/fareidzulkifli/task-manager/board"

// Patcher is the write side of the remote store used by the bridge.
type Patcher interface {
	PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error)
}

// Persister receives the writes that follow local mutations. Calls return
// immediately.
type Persister interface {
	PatchTask(id string, p domain.TaskPatch)
	PatchProject(id string, p domain.ProjectPatch)
}

// BridgeOptions sizes the bridge worker pool.
type BridgeOptions struct {
	Workers int
	Buffer  int
	// Timeout bounds each store call. Zero means calls are never cut short.
	Timeout time.Duration
}

type patchJob struct {
	entity  string
	id      string
	task    domain.TaskPatch
	project domain.ProjectPatch
}

func (j patchJob) fields() []string {
	if j.entity == domain.EntityTask {
		return j.task.Fields()
	}
	return j.project.Fields()
}

// Bridge issues one store PATCH per affected record in the background.
// Writes are fire-and-forget: they are never retried, they may complete in
// any order, and a failure never reverts local state. Failures are logged
// and published to alert subscribers.
type Bridge struct {
	store   Patcher
	log     *log.Logger
	timeout time.Duration
	alerts  *broker[*domain.PersistenceError]

	mu     sync.RWMutex
	jobs   chan patchJob
	closed bool
	wg     sync.WaitGroup
}

// NewBridge starts the worker pool.
func NewBridge(store Patcher, logger *log.Logger, opts BridgeOptions) *Bridge {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	b := &Bridge{
		store:   store,
		log:     logger,
		timeout: opts.Timeout,
		alerts:  newBroker[*domain.PersistenceError](),
		jobs:    make(chan patchJob, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	logger.Infof("patch bridge started, workers: %d, buffer: %d, timeout: %v", opts.Workers, opts.Buffer, opts.Timeout)
	return b
}

// Alerts subscribes to persistence failures.
func (b *Bridge) Alerts(buffer int) *Subscription[*domain.PersistenceError] {
	return b.alerts.subscribe(buffer)
}

// Report publishes a failure that happened outside the bridge, such as a
// queued write rejected by a worker.
func (b *Bridge) Report(pe *domain.PersistenceError) {
	b.alerts.publish(pe)
}

// PatchTask schedules a task PATCH.
func (b *Bridge) PatchTask(id string, p domain.TaskPatch) {
	b.submit(patchJob{entity: domain.EntityTask, id: id, task: p})
}

// PatchProject schedules a project PATCH.
func (b *Bridge) PatchProject(id string, p domain.ProjectPatch) {
	b.submit(patchJob{entity: domain.EntityProject, id: id, project: p})
}

// Close stops accepting writes and waits for in-flight ones. Writes
// submitted after Close are dropped with a warning.
func (b *Bridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) submit(j patchJob) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.WithFields(log.Fields{"entity": j.entity, "id": j.id}).Warn("patch bridge closed; dropping write")
		return
	}
	select {
	case b.jobs <- j:
	default:
		// Pool saturated. Never block the caller: run the write on its own.
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.run(-1, j)
		}()
	}
}

func (b *Bridge) worker(id int) {
	defer b.wg.Done()
	for j := range b.jobs {
		b.run(id, j)
	}
}

func (b *Bridge) run(worker int, j patchJob) {
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	fields := j.fields()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "board.patch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("entity", j.entity),
		attribute.String("id", j.id),
		attribute.String("fields", strings.Join(fields, ",")),
	)
	defer span.End()

	var err error
	if j.entity == domain.EntityTask {
		_, err = b.store.PatchTask(ctx, j.id, j.task)
	} else {
		_, err = b.store.PatchProject(ctx, j.id, j.project)
	}
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.log.WithError(err).WithFields(log.Fields{
		"entity": j.entity,
		"id":     j.id,
		"fields": fields,
		"worker": worker,
	}).Error("patch failed")
	b.alerts.publish(&domain.PersistenceError{Entity: j.entity, ID: j.id, Fields: fields, Err: err})
}
