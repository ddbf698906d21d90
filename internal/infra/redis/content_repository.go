package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ContentLoader fetches trivia and question content from a backing store.
type ContentLoader interface {
	LoadTrivia(ctx context.Context, triviaID string) (domain.Trivia, error)
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// ContentRepository caches content as JSON values in Redis and falls back to
// a loader on cache miss. Keys:
//
//	trivia:content:{triviaID}
//	question:content:{questionID}
type ContentRepository struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewContentRepository(client *redis.Client, loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContentRepository) GetTrivia(ctx context.Context, triviaID string) (domain.Trivia, error) {
	key := r.triviaKey(triviaID)

	var trivia domain.Trivia
	if ok, err := r.fromCache(ctx, key, &trivia); err == nil && ok {
		return trivia, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var trivia domain.Trivia
		if ok, err := r.fromCache(ctx, key, &trivia); err == nil && ok {
			return trivia, nil
		}

		trivia, err := r.loader.LoadTrivia(ctx, triviaID)
		if err != nil {
			return domain.Trivia{}, err
		}
		r.store(ctx, key, trivia)
		return trivia, nil
	})
	if err != nil {
		return domain.Trivia{}, err
	}
	return result.(domain.Trivia), nil
}

func (r *ContentRepository) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	key := r.questionKey(questionID)

	var question domain.Question
	if ok, err := r.fromCache(ctx, key, &question); err == nil && ok {
		return question, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		var question domain.Question
		if ok, err := r.fromCache(ctx, key, &question); err == nil && ok {
			return question, nil
		}

		question, err := r.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		r.store(ctx, key, question)
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *ContentRepository) fromCache(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached content: %w", err)
	}
	return true, nil
}

// store is best-effort; a failed cache write just means the next read loads again.
func (r *ContentRepository) store(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
}

func (r *ContentRepository) triviaKey(triviaID string) string {
	return "trivia:content:" + triviaID
}

func (r *ContentRepository) questionKey(questionID string) string {
	return "question:content:" + questionID
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
