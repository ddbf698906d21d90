package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ContentLoader fetches trivia and question content from a backing store.
type ContentLoader interface {
	LoadTrivia(ctx context.Context, triviaID string) (domain.Trivia, error)
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// ContentCache caches content with TTL to avoid repeated DB hits. Content is
// read-mostly reference data during scoring, so staleness within the TTL is
// acceptable.
type ContentCache struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	trivias   map[string]cachedTrivia
	questions map[string]cachedQuestion
}

type cachedTrivia struct {
	trivia    domain.Trivia
	expiresAt time.Time
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewContentCache(loader ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		trivias:   make(map[string]cachedTrivia),
		questions: make(map[string]cachedQuestion),
	}
}

func (c *ContentCache) GetTrivia(ctx context.Context, triviaID string) (domain.Trivia, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.trivias[triviaID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.trivia, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("trivia:"+triviaID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.trivias[triviaID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.trivia, nil
		}
		c.mu.RUnlock()

		trivia, err := c.loader.LoadTrivia(ctx, triviaID)
		if err != nil {
			return domain.Trivia{}, err
		}

		c.mu.Lock()
		c.trivias[triviaID] = cachedTrivia{
			trivia:    trivia,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return trivia, nil
	})
	if err != nil {
		return domain.Trivia{}, err
	}
	return result.(domain.Trivia), nil
}

func (c *ContentCache) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.questions[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.question, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("question:"+questionID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.questions[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.question, nil
		}
		c.mu.RUnlock()

		question, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		c.mu.Lock()
		c.questions[questionID] = cachedQuestion{
			question:  question,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticContentLoader is a loader backed by in-memory maps (useful for
// tests/demos). The question bank is derived from the trivias plus any extra
// bank-only questions.
type StaticContentLoader struct {
	trivias   map[string]domain.Trivia
	questions map[string]domain.Question
}

func NewStaticContentLoader(trivias map[string]domain.Trivia, extra ...domain.Question) *StaticContentLoader {
	questions := make(map[string]domain.Question)
	for _, trivia := range trivias {
		for _, q := range trivia.Questions {
			questions[q.ID] = q
		}
	}
	for _, q := range extra {
		questions[q.ID] = q
	}
	return &StaticContentLoader{trivias: trivias, questions: questions}
}

func (l *StaticContentLoader) LoadTrivia(_ context.Context, triviaID string) (domain.Trivia, error) {
	if trivia, ok := l.trivias[triviaID]; ok {
		return trivia, nil
	}
	return domain.Trivia{}, domain.ErrTriviaNotFound
}

func (l *StaticContentLoader) LoadQuestion(_ context.Context, questionID string) (domain.Question, error) {
	if question, ok := l.questions[questionID]; ok {
		return question, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}
