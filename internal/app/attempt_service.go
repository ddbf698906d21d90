package app

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"trivia-service/internal/domain"

	"github.com/google/uuid"
)

// DefaultTimeLimit is the answer window for an attempt.
const DefaultTimeLimit = 5 * time.Minute

// ContentRepository loads trivia and question content (from cache/backing store).
type ContentRepository interface {
	GetTrivia(ctx context.Context, triviaID string) (domain.Trivia, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// AttemptRepository owns attempt and submission records.
//
// CreateAttempt must reject a duplicate (user, trivia) pair with
// domain.ErrAttemptExists. FinalizeAttempt is a compare-and-set on the
// completed flag: it reports true for exactly one caller per attempt and
// false for everyone who arrives after, without overwriting the winner's
// score.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	GetAttemptByUserTrivia(ctx context.Context, userID, triviaID string) (domain.Attempt, error)
	FinalizeAttempt(ctx context.Context, attemptID string, score int) (bool, error)
	CreateSubmissions(ctx context.Context, submissions []domain.Submission) error
	SubmissionsByAttempt(ctx context.Context, attemptID string) ([]domain.Submission, error)
	AttemptsByTrivia(ctx context.Context, triviaID string) ([]domain.Attempt, error)
	OpenAttempts(ctx context.Context) ([]domain.Attempt, error)
}

// ExpiryScheduler schedules the one-shot expiry sweep for an attempt.
// Delivery must be at least once; late firing is tolerated and there is no
// cancellation path, so firing against a completed attempt must be a no-op
// on the receiving side.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, attemptID string, fireAt time.Time) error
}

// AttemptService contains the attempt lifecycle and scoring use cases.
type AttemptService struct {
	content   ContentRepository
	attempts  AttemptRepository
	scheduler ExpiryScheduler
	timeLimit time.Duration
	now       func() time.Time
	feed      *rankingFeed
}

func NewAttemptService(content ContentRepository, attempts AttemptRepository, scheduler ExpiryScheduler, timeLimit time.Duration) *AttemptService {
	return NewAttemptServiceWithClock(content, attempts, scheduler, timeLimit, time.Now)
}

// NewAttemptServiceWithClock allows deterministic timestamps in tests. The
// same clock drives attempt creation, the submission-path expiry check, and
// the scheduled deadline, so the two expiry decisions cannot diverge.
func NewAttemptServiceWithClock(content ContentRepository, attempts AttemptRepository, scheduler ExpiryScheduler, timeLimit time.Duration, now func() time.Time) *AttemptService {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	return &AttemptService{
		content:   content,
		attempts:  attempts,
		scheduler: scheduler,
		timeLimit: timeLimit,
		now:       now,
		feed:      newRankingFeed(),
	}
}

// TimeLimit returns the configured answer window.
func (s *AttemptService) TimeLimit() time.Duration {
	return s.timeLimit
}

// StartAttempt creates the single attempt a user gets for a trivia and
// schedules its expiry sweep. It fails with domain.ErrTriviaNotFound,
// domain.ErrNotAssigned, or domain.ErrAttemptExists.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, triviaID string) (domain.StartedAttempt, error) {
	trivia, err := s.content.GetTrivia(ctx, triviaID)
	if err != nil {
		return domain.StartedAttempt{}, err
	}
	if !trivia.IsAssigned(userID) {
		return domain.StartedAttempt{}, domain.ErrNotAssigned
	}

	attempt := domain.Attempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		TriviaID:  trivia.ID,
		StartTime: s.now(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.StartedAttempt{}, err
	}

	// Scheduling is best-effort here; RecoverExpiry re-schedules any open
	// attempt on boot, which keeps delivery at least once.
	if err := s.scheduler.Schedule(ctx, attempt.ID, attempt.Deadline(s.timeLimit)); err != nil {
		log.Printf("schedule expiry for attempt %s: %v", attempt.ID, err)
	}

	return domain.StartedAttempt{
		AttemptID: attempt.ID,
		TriviaID:  trivia.ID,
		StartTime: attempt.StartTime,
		TimeLimit: s.timeLimit,
		Questions: trivia.QuestionViews(),
	}, nil
}

// SubmitAnswers validates and scores one batch of answers for an open
// attempt, then finalizes it. Pairs referencing unknown questions or answers
// that do not belong to their question are skipped, not fatal: one malformed
// entry must not void an otherwise valid submission.
func (s *AttemptService) SubmitAnswers(ctx context.Context, attemptID, userID string, selections []domain.AnswerSelection) (domain.SubmitResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return domain.SubmitResult{}, domain.ErrInvalidAttempt
		}
		return domain.SubmitResult{}, err
	}
	// Missing, foreign, and completed attempts are indistinguishable to the caller.
	if attempt.UserID != userID || attempt.Completed {
		return domain.SubmitResult{}, domain.ErrInvalidAttempt
	}
	if attempt.Expired(s.now(), s.timeLimit) {
		return domain.SubmitResult{}, domain.ErrAttemptExpired
	}

	trivia, err := s.content.GetTrivia(ctx, attempt.TriviaID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	correct := 0
	submissions := make([]domain.Submission, 0, len(selections))
	for _, sel := range selections {
		question, err := s.content.GetQuestion(ctx, sel.QuestionID)
		if errors.Is(err, domain.ErrQuestionNotFound) {
			continue
		}
		if err != nil {
			return domain.SubmitResult{}, err
		}
		answer, ok := question.AnswerByID(sel.AnswerID)
		if !ok {
			continue
		}
		submissions = append(submissions, domain.Submission{
			ID:         uuid.NewString(),
			AttemptID:  attempt.ID,
			QuestionID: question.ID,
			AnswerID:   answer.ID,
			Correct:    answer.Correct,
		})
		if answer.Correct {
			correct++
		}
	}

	// Finalize before recording: only the CAS winner persists a submission
	// batch, so a concurrent sweep or duplicate submit can never leave two
	// batches behind.
	won, err := s.attempts.FinalizeAttempt(ctx, attempt.ID, correct)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if !won {
		return domain.SubmitResult{}, domain.ErrInvalidAttempt
	}
	if len(submissions) > 0 {
		if err := s.attempts.CreateSubmissions(ctx, submissions); err != nil {
			return domain.SubmitResult{}, err
		}
	}

	s.publishRanking(ctx, attempt.TriviaID)

	return domain.SubmitResult{
		CorrectAnswers: correct,
		TotalQuestions: len(trivia.Questions),
		TotalScore:     correct,
	}, nil
}

// ExpireAttempt is the sweeper's firing target: a user who never submitted
// scores zero. It tolerates being invoked zero, one, or many times for the
// same attempt; firing against a completed or deleted attempt is a no-op.
func (s *AttemptService) ExpireAttempt(ctx context.Context, attemptID string) error {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if attempt.Completed {
		return nil
	}
	won, err := s.attempts.FinalizeAttempt(ctx, attemptID, 0)
	if err != nil {
		return err
	}
	if won {
		s.publishRanking(ctx, attempt.TriviaID)
	}
	return nil
}

// RecoverExpiry re-schedules the expiry sweep for every open attempt. Called
// on boot so attempts started before a restart still get swept.
func (s *AttemptService) RecoverExpiry(ctx context.Context) error {
	open, err := s.attempts.OpenAttempts(ctx)
	if err != nil {
		return err
	}
	for _, attempt := range open {
		if err := s.scheduler.Schedule(ctx, attempt.ID, attempt.Deadline(s.timeLimit)); err != nil {
			return err
		}
	}
	return nil
}

// Ranking returns the leaderboard for a trivia, ordered by score descending.
// Tie order is whatever the store produced; nothing further is promised.
// A trivia nobody attempted yields domain.ErrNoAttempts, not an empty board.
func (s *AttemptService) Ranking(ctx context.Context, triviaID string) (domain.Ranking, error) {
	attempts, err := s.attempts.AttemptsByTrivia(ctx, triviaID)
	if err != nil {
		return domain.Ranking{}, err
	}
	if len(attempts) == 0 {
		return domain.Ranking{}, domain.ErrNoAttempts
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].TotalScore > attempts[j].TotalScore
	})

	trivia, err := s.content.GetTrivia(ctx, triviaID)
	entries := make([]domain.RankingEntry, 0, len(attempts))
	for _, attempt := range attempts {
		name := attempt.UserID
		if err == nil {
			name = trivia.UserName(attempt.UserID)
		}
		entries = append(entries, domain.RankingEntry{
			UserName:   name,
			TotalScore: attempt.TotalScore,
		})
	}
	return domain.Ranking{
		TriviaID:  triviaID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// ListSubmissions returns the audit view of a user's own submissions for a
// trivia. A user who never attempted gets an empty list, not an error.
func (s *AttemptService) ListSubmissions(ctx context.Context, userID, triviaID string) ([]domain.Submission, error) {
	attempt, err := s.attempts.GetAttemptByUserTrivia(ctx, userID, triviaID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return []domain.Submission{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.attempts.SubmissionsByAttempt(ctx, attempt.ID)
}

// SubscribeRanking returns a channel receiving ranking snapshots for a
// trivia whenever an attempt finalizes. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *AttemptService) SubscribeRanking(ctx context.Context, triviaID string) (<-chan domain.Ranking, func(), error) {
	ch, cancel := s.feed.subscribe(triviaID)

	initial, err := s.Ranking(ctx, triviaID)
	if errors.Is(err, domain.ErrNoAttempts) {
		initial = domain.Ranking{TriviaID: triviaID, UpdatedAt: s.now()}
	} else if err != nil {
		cancel()
		return nil, nil, err
	}
	ch <- initial
	return ch, cancel, nil
}

func (s *AttemptService) publishRanking(ctx context.Context, triviaID string) {
	if !s.feed.hasSubscribers(triviaID) {
		return
	}
	ranking, err := s.Ranking(ctx, triviaID)
	if err != nil {
		log.Printf("ranking snapshot for trivia %s: %v", triviaID, err)
		return
	}
	s.feed.publish(ranking)
}
