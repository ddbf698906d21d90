package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
)

func TestStartAttemptSchedulesSweepAndRedactsQuestions(t *testing.T) {
	ctx := context.Background()
	svc, _, sched, clock := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.AttemptID == "" {
		t.Fatalf("expected attempt id")
	}
	if !started.StartTime.Equal(clock.Now()) {
		t.Fatalf("expected start time %v, got %v", clock.Now(), started.StartTime)
	}
	if started.TimeLimit != 5*time.Minute {
		t.Fatalf("expected 5m limit, got %v", started.TimeLimit)
	}
	if len(started.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(started.Questions))
	}

	fireAt, ok := sched.scheduled(started.AttemptID)
	if !ok {
		t.Fatalf("expected expiry scheduled")
	}
	if want := started.StartTime.Add(5 * time.Minute); !fireAt.Equal(want) {
		t.Fatalf("expected sweep at %v, got %v", want, fireAt)
	}
}

func TestStartAttemptUnknownTrivia(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.StartAttempt(context.Background(), "u1", "trivia-unknown")
	if !errors.Is(err, domain.ErrTriviaNotFound) {
		t.Fatalf("expected trivia not found, got %v", err)
	}
}

func TestStartAttemptRequiresAssignment(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.StartAttempt(context.Background(), "stranger", "trivia-1")
	if !errors.Is(err, domain.ErrNotAssigned) {
		t.Fatalf("expected not assigned, got %v", err)
	}
}

func TestStartAttemptOnlyOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	if _, err := svc.StartAttempt(ctx, "u1", "trivia-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if !errors.Is(err, domain.ErrAttemptExists) {
		t.Fatalf("expected attempt exists, got %v", err)
	}
}

func TestSubmitAnswersScoresAndFinalizes(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	result, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{
		{QuestionID: "q1", AnswerID: "a2"}, // correct
		{QuestionID: "q2", AnswerID: "a3"}, // wrong
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.CorrectAnswers != 1 || result.TotalQuestions != 3 || result.TotalScore != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	attempt, err := store.GetAttempt(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if !attempt.Completed || attempt.TotalScore != 1 {
		t.Fatalf("expected completed with score 1, got %+v", attempt)
	}

	subs, err := store.SubmissionsByAttempt(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	byQuestion := map[string]bool{}
	for _, sub := range subs {
		byQuestion[sub.QuestionID] = sub.Correct
	}
	if !byQuestion["q1"] || byQuestion["q2"] {
		t.Fatalf("expected q1 correct and q2 incorrect, got %+v", byQuestion)
	}
}

func TestSubmitAnswersInvalidAttempt(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	// Missing attempt.
	if _, err := svc.SubmitAnswers(ctx, "nope", "u1", nil); !errors.Is(err, domain.ErrInvalidAttempt) {
		t.Fatalf("expected invalid attempt for missing, got %v", err)
	}

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Someone else's attempt.
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u2", nil); !errors.Is(err, domain.ErrInvalidAttempt) {
		t.Fatalf("expected invalid attempt for foreign caller, got %v", err)
	}

	// Already completed: second submit must not re-score.
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q1", AnswerID: "a2"}}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q2", AnswerID: "a4"}}); !errors.Is(err, domain.ErrInvalidAttempt) {
		t.Fatalf("expected invalid attempt on re-submit, got %v", err)
	}

	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if attempt.TotalScore != 1 {
		t.Fatalf("re-submit changed score: %+v", attempt)
	}
	subs, _ := store.SubmissionsByAttempt(ctx, started.AttemptID)
	if len(subs) != 1 {
		t.Fatalf("expected single submission batch, got %d records", len(subs))
	}
}

func TestSubmitAnswersExpired(t *testing.T) {
	ctx := context.Background()
	svc, store, _, clock := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clock.Advance(5*time.Minute + time.Second)

	_, err = svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{
		{QuestionID: "q1", AnswerID: "a2"},
	})
	if !errors.Is(err, domain.ErrAttemptExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	// Rejection must leave no trace: the sweeper still owns finalization.
	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if attempt.Completed || attempt.TotalScore != 0 {
		t.Fatalf("expired submit mutated attempt: %+v", attempt)
	}
	subs, _ := store.SubmissionsByAttempt(ctx, started.AttemptID)
	if len(subs) != 0 {
		t.Fatalf("expired submit recorded submissions: %d", len(subs))
	}

	if err := svc.ExpireAttempt(ctx, started.AttemptID); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	attempt, _ = store.GetAttempt(ctx, started.AttemptID)
	if !attempt.Completed || attempt.TotalScore != 0 {
		t.Fatalf("expected zero-score completion, got %+v", attempt)
	}
}

func TestMalformedPairsAreSkipped(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	result, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{
		{QuestionID: "q-unknown", AnswerID: "a2"}, // unknown question
		{QuestionID: "q1", AnswerID: "a4"},        // answer belongs to q2
		{QuestionID: "q2", AnswerID: "a4"},        // valid, correct
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.CorrectAnswers != 1 || result.TotalScore != 1 {
		t.Fatalf("expected single valid pair scored, got %+v", result)
	}

	subs, _ := store.SubmissionsByAttempt(ctx, started.AttemptID)
	if len(subs) != 1 || subs[0].QuestionID != "q2" {
		t.Fatalf("expected only the valid pair recorded, got %+v", subs)
	}
	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if !attempt.Completed {
		t.Fatalf("attempt should still finalize")
	}
}

func TestEmptyBatchStillFinalizes(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", nil)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.CorrectAnswers != 0 || result.TotalScore != 0 || result.TotalQuestions != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if !attempt.Completed {
		t.Fatalf("expected completion with zero valid pairs")
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q1", AnswerID: "a2"}}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// The sweeper may fire any number of times; the submitted score must
	// never be overwritten by a late zero.
	for i := 0; i < 3; i++ {
		if err := svc.ExpireAttempt(ctx, started.AttemptID); err != nil {
			t.Fatalf("expire %d failed: %v", i, err)
		}
	}
	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if !attempt.Completed || attempt.TotalScore != 1 {
		t.Fatalf("idempotence violated: %+v", attempt)
	}
}

func TestExpireUnknownAttemptIsNoop(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if err := svc.ExpireAttempt(context.Background(), "gone"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSubmitAfterExpiryFired(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := svc.ExpireAttempt(ctx, started.AttemptID); err != nil {
		t.Fatalf("expire failed: %v", err)
	}

	_, err = svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q1", AnswerID: "a2"}})
	if !errors.Is(err, domain.ErrInvalidAttempt) {
		t.Fatalf("expected invalid attempt after sweep, got %v", err)
	}
	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if attempt.TotalScore != 0 {
		t.Fatalf("late submit overwrote swept score: %+v", attempt)
	}
}

func TestConcurrentSubmitAndExpire(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q1", AnswerID: "a2"}})
	}()
	go func() {
		defer wg.Done()
		_ = svc.ExpireAttempt(ctx, started.AttemptID)
	}()
	wg.Wait()

	attempt, _ := store.GetAttempt(ctx, started.AttemptID)
	if !attempt.Completed {
		t.Fatalf("expected finalized attempt")
	}
	subs, _ := store.SubmissionsByAttempt(ctx, started.AttemptID)
	switch attempt.TotalScore {
	case 1:
		if len(subs) != 1 {
			t.Fatalf("submit won but recorded %d submissions", len(subs))
		}
	case 0:
		if len(subs) != 0 {
			t.Fatalf("sweep won but %d submissions recorded", len(subs))
		}
	default:
		t.Fatalf("corrupted score %d", attempt.TotalScore)
	}
}

func TestRankingOrdersByScoreDesc(t *testing.T) {
	ctx := context.Background()
	svc, store, _, clock := newTestService(t)

	for _, tc := range []struct {
		user  string
		score int
	}{
		{"u1", 3}, {"u2", 1}, {"u3", 2},
	} {
		attempt := domain.Attempt{ID: "attempt-" + tc.user, UserID: tc.user, TriviaID: "trivia-1", StartTime: clock.Now()}
		if err := store.CreateAttempt(ctx, attempt); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
		if _, err := store.FinalizeAttempt(ctx, attempt.ID, tc.score); err != nil {
			t.Fatalf("seed finalize: %v", err)
		}
	}

	ranking, err := svc.Ranking(ctx, "trivia-1")
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ranking.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ranking.Entries))
	}
	scores := []int{ranking.Entries[0].TotalScore, ranking.Entries[1].TotalScore, ranking.Entries[2].TotalScore}
	if scores[0] != 3 || scores[1] != 2 || scores[2] != 1 {
		t.Fatalf("expected [3 2 1], got %v", scores)
	}
	if ranking.Entries[0].UserName != "Alice" {
		t.Fatalf("expected display name resolution, got %q", ranking.Entries[0].UserName)
	}
}

func TestRankingNoAttempts(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Ranking(context.Background(), "trivia-1")
	if !errors.Is(err, domain.ErrNoAttempts) {
		t.Fatalf("expected no attempts, got %v", err)
	}
}

func TestListSubmissions(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{
		{QuestionID: "q1", AnswerID: "a2"},
		{QuestionID: "q3", AnswerID: "a5"},
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	subs, err := svc.ListSubmissions(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}

	// A user who never attempted sees an empty list, not an error.
	none, err := svc.ListSubmissions(ctx, "u2", "trivia-1")
	if err != nil {
		t.Fatalf("list for non-attempter failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty list, got %d", len(none))
	}
}

func TestRecoverExpiryReschedulesOpenAttempts(t *testing.T) {
	ctx := context.Background()
	svc, store, sched, clock := newTestService(t)

	open := domain.Attempt{ID: "attempt-open", UserID: "u1", TriviaID: "trivia-1", StartTime: clock.Now()}
	if err := store.CreateAttempt(ctx, open); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	done := domain.Attempt{ID: "attempt-done", UserID: "u2", TriviaID: "trivia-1", StartTime: clock.Now()}
	if err := store.CreateAttempt(ctx, done); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	if _, err := store.FinalizeAttempt(ctx, done.ID, 2); err != nil {
		t.Fatalf("seed finalize: %v", err)
	}

	if err := svc.RecoverExpiry(ctx); err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if _, ok := sched.scheduled(open.ID); !ok {
		t.Fatalf("expected open attempt rescheduled")
	}
	if _, ok := sched.scheduled(done.ID); ok {
		t.Fatalf("completed attempt should not be rescheduled")
	}
}

func TestSubscribeRankingReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	ch, cancel, err := svc.SubscribeRanking(ctx, "trivia-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial.Entries)
	}

	started, err := svc.StartAttempt(ctx, "u1", "trivia-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, started.AttemptID, "u1", []domain.AnswerSelection{{QuestionID: "q1", AnswerID: "a2"}}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	update := <-ch
	if len(update.Entries) != 1 || update.Entries[0].TotalScore != 1 {
		t.Fatalf("expected updated ranking, got %+v", update.Entries)
	}
}

// recordingScheduler captures schedule calls without firing anything.
type recordingScheduler struct {
	mu     sync.Mutex
	fireAt map[string]time.Time
}

func (s *recordingScheduler) Schedule(_ context.Context, attemptID string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fireAt == nil {
		s.fireAt = make(map[string]time.Time)
	}
	s.fireAt[attemptID] = fireAt
	return nil
}

func (s *recordingScheduler) scheduled(attemptID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.fireAt[attemptID]
	return at, ok
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*app.AttemptService, *memory.AttemptStore, *recordingScheduler, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
	store := memory.NewAttemptStore()
	sched := &recordingScheduler{}
	content := memory.NewContentCache(memory.NewStaticContentLoader(map[string]domain.Trivia{
		"trivia-1": testTrivia(),
	}), 5*time.Minute)
	svc := app.NewAttemptServiceWithClock(content, store, sched, 5*time.Minute, clock.Now)
	return svc, store, sched, clock
}

func testTrivia() domain.Trivia {
	return domain.Trivia{
		ID:          "trivia-1",
		Title:       "Capitals and sums",
		Description: "Mixed-difficulty sample trivia",
		Questions: []domain.Question{
			domain.NewQuestion("q1", "What is 2 + 2?", domain.DifficultyEasy, []domain.Answer{
				{ID: "a1", QuestionID: "q1", Text: "3", Correct: false},
				{ID: "a2", QuestionID: "q1", Text: "4", Correct: true},
			}),
			domain.NewQuestion("q2", "Capital of France?", domain.DifficultyMedium, []domain.Answer{
				{ID: "a3", QuestionID: "q2", Text: "Lyon", Correct: false},
				{ID: "a4", QuestionID: "q2", Text: "Paris", Correct: true},
			}),
			domain.NewQuestion("q3", "Year the Berlin Wall fell?", domain.DifficultyHard, []domain.Answer{
				{ID: "a5", QuestionID: "q3", Text: "1991", Correct: false},
				{ID: "a6", QuestionID: "q3", Text: "1989", Correct: true},
			}),
		},
		Users: []domain.User{
			{ID: "u1", Name: "Alice"},
			{ID: "u2", Name: "Bob"},
			{ID: "u3", Name: "Cara"},
		},
	}
}
