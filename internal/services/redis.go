package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/events"
)

// RelayPrefix namespaces party channels on Redis pub/sub.
const RelayPrefix = "quickmatch:"

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Redis URL")
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return client, nil
}

func relayChannel(ch events.Channel) string {
	return RelayPrefix + ch.String()
}

// RedisPublisher publishes party events to Redis so that whichever API instance
// holds the party's socket can deliver them.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, ch events.Channel, ev events.Outbound) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}
	return errors.Wrap(p.client.Publish(ctx, relayChannel(ch), payload).Err(), "redis publish")
}

// RedisRelay feeds every event published on Redis into the local hub.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	log    *logrus.Entry
}

func NewRedisRelay(client *redis.Client, hub *Hub, log *logrus.Entry) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, log: log}
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, RelayPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "redis subscribe")
	}
	r.log.Info("Redis relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ch := events.Channel(strings.TrimPrefix(msg.Channel, RelayPrefix))
			if err := r.hub.Deliver(ch, []byte(msg.Payload)); err != nil {
				r.log.WithError(err).WithField("channel", msg.Channel).Warn("Dropping relayed event")
			}
		}
	}
}
