package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// wireMessage is the on-queue framing. The body is embedded as raw JSON
// so the consumer sees exactly the bytes the producer serialized.
type wireMessage struct {
	CorrelationID string          `json:"correlation_id"`
	ContentType   string          `json:"content_type"`
	Body          json.RawMessage `json:"body"`
}

// RedisQueue implements Queue on a redis list: LPUSH to publish, BRPOP to
// consume, and a sibling "<queue>:dead" list for dead letters. The client
// is process-scoped and reused across invocations.
type RedisQueue struct {
	client     *redis.Client
	queue      string
	dead       string
	popTimeout time.Duration
}

func NewRedisQueue(addr, queue string) *RedisQueue {
	return &RedisQueue{
		client:     redis.NewClient(&redis.Options{Addr: addr}),
		queue:      queue,
		dead:       queue + ":dead",
		popTimeout: 5 * time.Second,
	}
}

func (q *RedisQueue) Publish(ctx context.Context, body []byte, correlationID string) error {
	payload, err := encodeMessage(body, correlationID)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", q.queue, err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (*Message, error) {
	res, err := q.client.BRPop(ctx, q.popTimeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume from %s: %w", q.queue, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("consume from %s: unexpected reply length %d", q.queue, len(res))
	}
	return decodeMessage([]byte(res[1])), nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, msg *Message) error {
	payload, err := encodeMessage(msg.Body, msg.CorrelationID)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.dead, payload).Err(); err != nil {
		return fmt.Errorf("dead-letter to %s: %w", q.dead, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func encodeMessage(body []byte, correlationID string) ([]byte, error) {
	wire := wireMessage{
		CorrelationID: correlationID,
		ContentType:   "application/json",
		Body:          json.RawMessage(body),
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		// The body is not valid JSON; fall back to shipping it bare so a
		// malformed producer payload still reaches the consumer.
		return body, nil
	}
	return payload, nil
}

// decodeMessage unwraps the wire framing. A payload that does not parse
// as a wireMessage is treated as a bare body: the worker is the place
// that decides what to do with malformed input, not the transport.
func decodeMessage(payload []byte) *Message {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil || len(wire.Body) == 0 {
		return &Message{Body: payload}
	}
	return &Message{Body: wire.Body, CorrelationID: wire.CorrelationID}
}
