package redis

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const expiryQueueKey = "trivia:attempt:expiry"

// FireFunc is invoked when an attempt's expiry deadline passes.
type FireFunc func(ctx context.Context, attemptID string) error

// ExpiryQueue is a Redis-backed implementation of app.ExpiryScheduler: a
// sorted set keyed by deadline, drained by a poller. Members are removed
// only after the sweep ran, so a crash mid-fire re-delivers on the next
// poll — at-least-once, which the idempotent firing target absorbs. Unlike
// in-process timers the queue survives restarts.
type ExpiryQueue struct {
	client   *redis.Client
	interval time.Duration

	mu   sync.Mutex
	fire FireFunc
	stop chan struct{}
	done chan struct{}
}

func NewExpiryQueue(client *redis.Client, interval time.Duration) *ExpiryQueue {
	if interval <= 0 {
		interval = time.Second
	}
	return &ExpiryQueue{client: client, interval: interval}
}

func (q *ExpiryQueue) Schedule(ctx context.Context, attemptID string, fireAt time.Time) error {
	return q.client.ZAdd(ctx, expiryQueueKey, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: attemptID,
	}).Err()
}

// Start launches the poller. Call Stop to shut it down.
func (q *ExpiryQueue) Start(fire FireFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stop != nil {
		return
	}
	q.fire = fire
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.poll(q.stop, q.done)
}

func (q *ExpiryQueue) Stop() {
	q.mu.Lock()
	stop, done := q.stop, q.done
	q.stop, q.done = nil, nil
	q.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (q *ExpiryQueue) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.drainDue(context.Background())
		}
	}
}

func (q *ExpiryQueue) drainDue(ctx context.Context) {
	max := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, expiryQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		log.Printf("expiry queue poll: %v", err)
		return
	}
	for _, attemptID := range due {
		if err := q.fire(ctx, attemptID); err != nil {
			// Leave the member in place; the next poll retries it.
			log.Printf("expire attempt %s: %v", attemptID, err)
			continue
		}
		if err := q.client.ZRem(ctx, expiryQueueKey, attemptID).Err(); err != nil {
			log.Printf("expiry queue ack %s: %v", attemptID, err)
		}
	}
}
