package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/infinite-story/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const requestsKey = "story-requests"

// InteractionQueue is the global FIFO of story requests shared by all workers.
type InteractionQueue struct {
	client *Client
}

func NewInteractionQueue(client *Client) *InteractionQueue {
	return &InteractionQueue{client: client}
}

// Enqueue adds a request to the end of the queue
func (q *InteractionQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// Requeue puts a request back at the end of the queue and counts the attempt.
func (q *InteractionQueue) Requeue(ctx context.Context, req *queue.Request) error {
	req.Attempts++
	return q.Enqueue(ctx, req)
}

// Dequeue removes and returns the next request. Returns nil if the queue is empty.
func (q *InteractionQueue) Dequeue(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	return parse(result)
}

// BlockingDequeue waits up to timeout for a request. Returns nil on timeout.
func (q *InteractionQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	// BLPOP returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP result: %v", result)
	}
	return parse(result[1])
}

// Depth returns the number of requests waiting
func (q *InteractionQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.rdb.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(n), nil
}

func parse(payload string) (*queue.Request, error) {
	req, err := queue.FromJSON([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}
