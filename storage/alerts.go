package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/fareidzulkifli/task-manager/domain"
)

// AlertsChannel is the Redis channel queued PATCH failures are announced on.
const AlertsChannel = "board.alerts"

type alertMessage struct {
	Entity string   `json:"entity"`
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
	Error  string   `json:"error"`
}

// AlertPublisher announces failed writes to serving processes.
type AlertPublisher struct {
	client  *redis.Client
	channel string
}

// NewAlertPublisher publishes on channel.
func NewAlertPublisher(client *redis.Client, channel string) *AlertPublisher {
	return &AlertPublisher{client: client, channel: channel}
}

// Publish sends pe to every relay listening on the channel.
func (p *AlertPublisher) Publish(ctx context.Context, pe *domain.PersistenceError) error {
	msg := alertMessage{Entity: pe.Entity, ID: pe.ID, Fields: pe.Fields}
	if pe.Err != nil {
		msg.Error = pe.Err.Error()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// RelayAlerts hands every failure announced on channel to report until ctx
// ends, resubscribing when the connection drops.
func RelayAlerts(ctx context.Context, client *redis.Client, channel string, report func(*domain.PersistenceError), logger *log.Logger) {
	for {
		sub := client.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var m alertMessage
				if err := sonic.UnmarshalString(msg.Payload, &m); err != nil {
					logger.WithError(err).Error("unable to parse alert")
					continue
				}
				report(&domain.PersistenceError{Entity: m.Entity, ID: m.ID, Fields: m.Fields, Err: errors.New(m.Error)})
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("alerts channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
