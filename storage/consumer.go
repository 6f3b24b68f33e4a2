package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

type messageQueue interface {
	Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

// Deduper guards against applying a redelivered command twice.
type Deduper interface {
	Add(ctx context.Context, id string) (bool, error)
	Remove(ctx context.Context, id string) error
}

type azureMessages struct{ client *azqueue.QueueClient }

func (q azureMessages) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := q.client.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

func (q azureMessages) Delete(ctx context.Context, id, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// AlertSink receives writes the consumer gave up on.
type AlertSink interface {
	Publish(ctx context.Context, pe *domain.PersistenceError) error
}

// Consumer drains the patch queue into the system of record. Each command
// is attempted once; failures are logged and the message is removed.
type Consumer struct {
	queue    messageQueue
	store    board.Patcher
	dedupe   Deduper
	alerts   AlertSink
	log      *log.Logger
	interval time.Duration
}

// NewConsumer creates a consumer. dedupe may be nil.
func NewConsumer(client *azqueue.QueueClient, store board.Patcher, dedupe Deduper, logger *log.Logger) *Consumer {
	return &Consumer{queue: azureMessages{client: client}, store: store, dedupe: dedupe, log: logger, interval: time.Second}
}

// WithAlerts announces failed commands on sink.
func (c *Consumer) WithAlerts(sink AlertSink) *Consumer {
	c.alerts = sink
	return c
}

// Run polls the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("patch consumer starting")
	for {
		msg, err := c.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).Error("receive")
		}
		if err != nil || msg == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.interval):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *azqueue.DequeuedMessage) {
	defer func() {
		if msg.MessageID == nil || msg.PopReceipt == nil {
			return
		}
		if err := c.queue.Delete(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
			c.log.WithError(err).WithField("message", *msg.MessageID).Error("delete message")
		}
	}()
	if msg.MessageText == nil {
		return
	}
	var cmd domain.Command
	if err := sonic.Unmarshal([]byte(*msg.MessageText), &cmd); err != nil {
		c.log.WithError(err).Error("decode command")
		return
	}
	entry := c.log.WithFields(log.Fields{"command": cmd.ID, "entity": cmd.EntityType, "id": cmd.EntityID})

	if c.dedupe != nil && cmd.ID != "" {
		added, err := c.dedupe.Add(ctx, cmd.ID)
		if err != nil {
			entry.WithError(err).Warn("dedupe unavailable")
		} else if !added {
			entry.Debug("duplicate command")
			return
		}
	}
	if err := c.apply(ctx, cmd); err != nil {
		if c.dedupe != nil && cmd.ID != "" && !errors.Is(err, domain.ErrNotFound) {
			_ = c.dedupe.Remove(ctx, cmd.ID)
		}
		entry.WithError(err).Error("apply command")
		c.announce(ctx, cmd, err)
		return
	}
	entry.Debug("command applied")
}

func (c *Consumer) apply(ctx context.Context, cmd domain.Command) error {
	if cmd.Type != domain.CommandPatch {
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	switch cmd.EntityType {
	case domain.EntityTask:
		p, err := cmd.TaskPatch()
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		_, err = c.store.PatchTask(ctx, cmd.EntityID, p)
		return err
	case domain.EntityProject:
		p, err := cmd.ProjectPatch()
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		_, err = c.store.PatchProject(ctx, cmd.EntityID, p)
		return err
	}
	return fmt.Errorf("unknown entity type %q", cmd.EntityType)
}

func (c *Consumer) announce(ctx context.Context, cmd domain.Command, err error) {
	if c.alerts == nil {
		return
	}
	pe := &domain.PersistenceError{Entity: cmd.EntityType, ID: cmd.EntityID, Err: err}
	switch cmd.EntityType {
	case domain.EntityTask:
		if p, perr := cmd.TaskPatch(); perr == nil {
			pe.Fields = p.Fields()
		}
	case domain.EntityProject:
		if p, perr := cmd.ProjectPatch(); perr == nil {
			pe.Fields = p.Fields()
		}
	}
	if perr := c.alerts.Publish(ctx, pe); perr != nil {
		c.log.WithError(perr).Warn("publish alert")
	}
}
