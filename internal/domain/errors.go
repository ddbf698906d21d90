package domain

import "errors"

var (
	// ErrTriviaNotFound is returned when the referenced trivia does not exist.
	ErrTriviaNotFound = errors.New("trivia not found")
	// ErrNotAssigned is returned when a user starts a trivia they were not assigned to.
	ErrNotAssigned = errors.New("user not assigned to this trivia")
	// ErrAttemptExists is returned on a second start for the same (user, trivia) pair.
	ErrAttemptExists = errors.New("attempt already exists for this trivia")
	// ErrAttemptNotFound is a storage-level signal; the service collapses it
	// into ErrInvalidAttempt before it reaches callers.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrInvalidAttempt covers missing, foreign, and already-completed
	// attempts uniformly so callers cannot tell which case applied.
	ErrInvalidAttempt = errors.New("invalid or already completed attempt")
	// ErrAttemptExpired is returned when the answer window has elapsed.
	ErrAttemptExpired = errors.New("attempt time window has expired")
	// ErrQuestionNotFound indicates a question ID missing from the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoAttempts is returned when a ranking is requested for a trivia
	// nobody has attempted.
	ErrNoAttempts = errors.New("no attempts recorded for this trivia")
)
