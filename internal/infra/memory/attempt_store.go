package memory

import (
	"context"
	"sync"

	"trivia-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// The (user, trivia) uniqueness constraint and the finalize compare-and-set
// are both enforced under the store lock.
type AttemptStore struct {
	mu           sync.RWMutex
	attempts     map[string]domain.Attempt
	byUserTrivia map[string]string
	submissions  map[string][]domain.Submission
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:     make(map[string]domain.Attempt),
		byUserTrivia: make(map[string]string),
		submissions:  make(map[string][]domain.Submission),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey(attempt.UserID, attempt.TriviaID)
	if _, ok := s.byUserTrivia[key]; ok {
		return domain.ErrAttemptExists
	}
	s.attempts[attempt.ID] = attempt
	s.byUserTrivia[key] = attempt.ID
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) GetAttemptByUserTrivia(_ context.Context, userID, triviaID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUserTrivia[attemptKey(userID, triviaID)]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id], nil
}

// FinalizeAttempt flips the completed flag and commits the score for exactly
// one caller; late arrivals observe completed and report false.
func (s *AttemptStore) FinalizeAttempt(_ context.Context, attemptID string, score int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if attempt.Completed {
		return false, nil
	}
	attempt.Completed = true
	attempt.TotalScore = score
	s.attempts[attemptID] = attempt
	return true, nil
}

func (s *AttemptStore) CreateSubmissions(_ context.Context, submissions []domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range submissions {
		s.submissions[sub.AttemptID] = append(s.submissions[sub.AttemptID], sub)
	}
	return nil
}

func (s *AttemptStore) SubmissionsByAttempt(_ context.Context, attemptID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.submissions[attemptID]
	out := make([]domain.Submission, len(subs))
	copy(out, subs)
	return out, nil
}

func (s *AttemptStore) AttemptsByTrivia(_ context.Context, triviaID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.TriviaID == triviaID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (s *AttemptStore) OpenAttempts(_ context.Context) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if !attempt.Completed {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func attemptKey(userID, triviaID string) string {
	return userID + "|" + triviaID
}
