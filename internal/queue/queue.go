package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "audit_jobs"

// ErrEmpty is returned by PopAuditJob when no job arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Job asks a worker to audit one stored claim. Model may be empty to use
// the default provider.
type Job struct {
	ClaimID     int64     `json:"claim_id"`
	Model       string    `json:"model,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type Queue struct {
	client *redis.Client
	key    string
}

func New(url, key string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = defaultKey
	}
	client := redis.NewClient(opt)
	return &Queue{client: client, key: key}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) PushAuditJob(ctx context.Context, job Job) error {
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *Queue) PopAuditJob(ctx context.Context, timeout time.Duration) (Job, error) {
	var job Job
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return job, ErrEmpty
		}
		return job, err
	}
	if len(res) < 2 {
		return job, ErrEmpty
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, err
	}
	return job, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Queue) Close() error {
	return q.client.Close()
}
