package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trivia-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ContentLoader loads trivia and question JSONB from Postgres.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadTrivia(ctx context.Context, triviaID string) (domain.Trivia, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM trivias WHERE id=$1`, triviaID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trivia{}, domain.ErrTriviaNotFound
	}
	if err != nil {
		return domain.Trivia{}, fmt.Errorf("load trivia: %w", err)
	}
	var trivia domain.Trivia
	if err := json.Unmarshal(raw, &trivia); err != nil {
		return domain.Trivia{}, fmt.Errorf("unmarshal trivia: %w", err)
	}
	return trivia, nil
}

func (l *ContentLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questions WHERE id=$1`, questionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	var question domain.Question
	if err := json.Unmarshal(raw, &question); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	return question, nil
}
