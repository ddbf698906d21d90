package postgres

import (
	"context"
	"errors"
	"fmt"

	"trivia-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptStore is the Postgres implementation of app.AttemptRepository. The
// unique index on (user_id, trivia_id) enforces one attempt per pair and the
// conditional UPDATE in FinalizeAttempt is the storage-level compare-and-set
// the finalize race relies on.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, user_id, trivia_id, start_time, completed, total_score)
		 VALUES ($1, $2, $3, $4, false, 0)
		 ON CONFLICT (user_id, trivia_id) DO NOTHING`,
		attempt.ID, attempt.UserID, attempt.TriviaID, attempt.StartTime)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptExists
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return s.scanAttempt(s.pool.QueryRow(ctx,
		`SELECT id, user_id, trivia_id, start_time, completed, total_score
		 FROM attempts WHERE id=$1`, attemptID))
}

func (s *AttemptStore) GetAttemptByUserTrivia(ctx context.Context, userID, triviaID string) (domain.Attempt, error) {
	return s.scanAttempt(s.pool.QueryRow(ctx,
		`SELECT id, user_id, trivia_id, start_time, completed, total_score
		 FROM attempts WHERE user_id=$1 AND trivia_id=$2`, userID, triviaID))
}

func (s *AttemptStore) FinalizeAttempt(ctx context.Context, attemptID string, score int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts SET completed=true, total_score=$2
		 WHERE id=$1 AND completed=false`, attemptID, score)
	if err != nil {
		return false, fmt.Errorf("finalize attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *AttemptStore) CreateSubmissions(ctx context.Context, submissions []domain.Submission) error {
	if len(submissions) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submissions: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sub := range submissions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO submissions (id, attempt_id, question_id, answer_id, is_correct)
			 VALUES ($1, $2, $3, $4, $5)`,
			sub.ID, sub.AttemptID, sub.QuestionID, sub.AnswerID, sub.Correct); err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *AttemptStore) SubmissionsByAttempt(ctx context.Context, attemptID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, answer_id, is_correct
		 FROM submissions WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := []domain.Submission{}
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.ID, &sub.AttemptID, &sub.QuestionID, &sub.AnswerID, &sub.Correct); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *AttemptStore) AttemptsByTrivia(ctx context.Context, triviaID string) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT id, user_id, trivia_id, start_time, completed, total_score
		 FROM attempts WHERE trivia_id=$1`, triviaID)
}

func (s *AttemptStore) OpenAttempts(ctx context.Context) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx,
		`SELECT id, user_id, trivia_id, start_time, completed, total_score
		 FROM attempts WHERE completed=false`)
}

func (s *AttemptStore) queryAttempts(ctx context.Context, sql string, args ...interface{}) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var attempt domain.Attempt
		if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.TriviaID,
			&attempt.StartTime, &attempt.Completed, &attempt.TotalScore); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func (s *AttemptStore) scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var attempt domain.Attempt
	err := row.Scan(&attempt.ID, &attempt.UserID, &attempt.TriviaID,
		&attempt.StartTime, &attempt.Completed, &attempt.TotalScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	return attempt, nil
}
