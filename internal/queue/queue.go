// Package queue wraps the Redis client used as the core's inbound work
// queue (blocking FIFO pop) and outbound broadcast channel (pub/sub
// publish), following the same connection-setup idiom as the rest of
// the stack's Redis wrapper.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"rce-core/internal/rcerr"
	"rce-core/pkg/job"
)

// Queue is the Dispatcher's view of Redis: blocking dequeue from a
// named list, and fire-and-forget publish to a named channel.
type Queue struct {
	client              *redis.Client
	submissionQueueName string
	analysisChannelName string
}

// New connects to Redis at url (a redis:// or rediss:// connection
// string) and returns a Queue bound to the given list/channel names.
func New(url, submissionQueueName, analysisChannelName string) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse QUEUE_URL: %v", rcerr.ErrQueueUnreachable, err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", rcerr.ErrQueueUnreachable, err)
	}

	return &Queue{
		client:              client,
		submissionQueueName: submissionQueueName,
		analysisChannelName: analysisChannelName,
	}, nil
}

// Close releases the underlying connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Dequeue blocks until a job is available at the head of the work
// queue, with no timeout (per the documented blocking-pop contract).
// ctx cancellation (e.g. process shutdown) unblocks it early.
func (q *Queue) Dequeue(ctx context.Context) (job.Job, error) {
	result, err := q.client.BLPop(ctx, 0, q.submissionQueueName).Result()
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: blpop %s: %v", rcerr.ErrQueueUnreachable, q.submissionQueueName, err)
	}
	// BLPOP returns [listName, value]; the list name is result[0].
	if len(result) != 2 {
		return job.Job{}, fmt.Errorf("%w: unexpected blpop reply shape", rcerr.ErrMalformedJob)
	}

	var j job.Job
	if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", rcerr.ErrMalformedJob, err)
	}
	return j, nil
}

// PublishAnalysis fires a notification to the analysis broadcast
// channel. It is fire-and-forget: failures here do not affect the
// job's already-recorded terminal outcome.
func (q *Queue) PublishAnalysis(ctx context.Context, notification job.AnalysisNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal analysis notification: %w", err)
	}
	if err := q.client.Publish(ctx, q.analysisChannelName, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", q.analysisChannelName, err)
	}
	return nil
}
