package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
)

// RedisFanout mirrors a tree's Stream onto a Redis Pub/Sub channel so a
// gateway process other than the one running the executor can relay
// events to its own SSE/WebSocket clients. It carries no state across
// queries: the channel is named per tree and nothing is written with a
// TTL longer than the stream's own retention window (spec §6 "Persisted
// state: None between queries").
type RedisFanout struct {
	client *redis.Client
	prefix string
	logger core.Logger
}

// NewRedisFanout wraps an already-connected client. prefix namespaces the
// pub/sub channels, e.g. "vrag:progress".
func NewRedisFanout(client *redis.Client, prefix string, logger core.Logger) *RedisFanout {
	if prefix == "" {
		prefix = "vrag:progress"
	}
	return &RedisFanout{client: client, prefix: prefix, logger: logger}
}

func (f *RedisFanout) channel(treeID string) string {
	return fmt.Sprintf("%s:%s", f.prefix, treeID)
}

// Relay subscribes to s and republishes every event to Redis under
// treeID until s closes or ctx is cancelled, then unsubscribes. Call this
// from the process hosting the executor; remote gateways call Tail to
// consume the same sequence.
func (f *RedisFanout) Relay(ctx context.Context, treeID string, s *Stream) {
	channel := f.channel(treeID)
	for event := range s.Subscribe() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := json.Marshal(event)
		if err != nil {
			if f.logger != nil {
				f.logger.Error("failed to marshal progress event for fanout", map[string]interface{}{
					"tree_id": treeID,
					"error":   err.Error(),
				})
			}
			continue
		}
		if err := f.client.Publish(ctx, channel, data).Err(); err != nil {
			if f.logger != nil {
				f.logger.Error("failed to publish progress event", map[string]interface{}{
					"tree_id": treeID,
					"channel": channel,
					"error":   err.Error(),
				})
			}
		}
	}
}

// Tail subscribes to treeID's Redis channel and decodes events as they
// arrive. The returned cancel func must be called to release the Redis
// subscription; the channel closes once cancel is called or ctx ends.
func (f *RedisFanout) Tail(ctx context.Context, treeID string) (<-chan model.ProgressEvent, func(), error) {
	channel := f.channel(treeID)
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := f.client.Subscribe(subCtx, channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		return nil, nil, core.NewFrameworkError("progress.Tail", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}

	out := make(chan model.ProgressEvent, subscriberBuffer)
	go func() {
		<-subCtx.Done()
		_ = pubsub.Close()
	}()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var event model.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-subCtx.Done():
				return
			}
			if event.Type.Terminal() {
				return
			}
		}
	}()

	return out, cancel, nil
}

// NewRedisClient opens a client from a redis:// URL, applying dialTimeout
// to the connection attempt. Credentials travel only inside the URL,
// sourced from core.Config; callers never see them directly.
func NewRedisClient(url string, dialTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, core.NewFrameworkError("progress.NewRedisClient", core.KindValidation, fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err))
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("progress.NewRedisClient", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}
	return client, nil
}
