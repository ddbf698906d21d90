package domain

import "time"

// Difficulty classifies how hard a question is. The score weight of a
// question is derived from it and never supplied by callers.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Weight maps a difficulty to its score weight (easy=1, medium=2, hard=3).
// Anything unrecognized weighs as hard.
func (d Difficulty) Weight() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	default:
		return 3
	}
}

// Answer is one possible answer to a question. Correct must never reach
// non-privileged callers; use the redacted views for presentation.
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question is a bank question with its answers and derived weight.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty"`
	Weight     int        `json:"weight"`
	Answers    []Answer   `json:"answers"`
}

// NewQuestion builds a question, computing the weight from the difficulty.
func NewQuestion(id, text string, difficulty Difficulty, answers []Answer) Question {
	return Question{
		ID:         id,
		Text:       text,
		Difficulty: difficulty,
		Weight:     difficulty.Weight(),
		Answers:    answers,
	}
}

// AnswerByID returns the answer with the given ID, if it belongs to q.
func (q Question) AnswerByID(answerID string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// User is the minimal identity the core needs for assignment checks and
// ranking display; user management itself lives elsewhere.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Trivia is a quiz assembled from bank questions and assigned to users.
type Trivia struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	Users       []User     `json:"users"`
}

// IsAssigned reports whether the user may attempt this trivia.
func (t Trivia) IsAssigned(userID string) bool {
	for _, u := range t.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// UserName resolves a display name for ranking output, falling back to the
// raw ID when the user is no longer in the assigned set.
func (t Trivia) UserName(userID string) string {
	for _, u := range t.Users {
		if u.ID == userID {
			return u.Name
		}
	}
	return userID
}

// Attempt is one user's single timed try at one trivia. StartTime is set
// once at creation; Completed is monotonic and TotalScore is written exactly
// once at finalization.
type Attempt struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	TriviaID   string    `json:"triviaId"`
	StartTime  time.Time `json:"startTime"`
	Completed  bool      `json:"completed"`
	TotalScore int       `json:"totalScore"`
}

// Expired reports whether the answer window has elapsed. The submission path
// and the expiry sweeper must both evaluate this same predicate.
func (a Attempt) Expired(now time.Time, limit time.Duration) bool {
	return now.After(a.StartTime.Add(limit))
}

// Deadline is the instant the attempt stops being answerable.
func (a Attempt) Deadline(limit time.Duration) time.Time {
	return a.StartTime.Add(limit)
}

// Submission records one answered question within an attempt. Correct is a
// snapshot taken at submission time; later edits to the answer bank do not
// rewrite history.
type Submission struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
	Correct    bool   `json:"isCorrect"`
}

// AnswerSelection is one (question, answer) pair in a submission batch.
type AnswerSelection struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

// AnswerView is an answer with the correctness flag stripped.
type AnswerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the redacted form of a question shown to players.
type QuestionView struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Difficulty Difficulty   `json:"difficulty"`
	Answers    []AnswerView `json:"answers"`
}

// View strips correctness flags for presentation to non-privileged callers.
func (q Question) View() QuestionView {
	answers := make([]AnswerView, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, AnswerView{ID: a.ID, Text: a.Text})
	}
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Difficulty: q.Difficulty,
		Answers:    answers,
	}
}

// QuestionViews redacts every question in the trivia.
func (t Trivia) QuestionViews() []QuestionView {
	views := make([]QuestionView, 0, len(t.Questions))
	for _, q := range t.Questions {
		views = append(views, q.View())
	}
	return views
}

// StartedAttempt is returned from starting an attempt: what the caller needs
// to present the questions and a countdown.
type StartedAttempt struct {
	AttemptID string         `json:"attemptId"`
	TriviaID  string         `json:"triviaId"`
	StartTime time.Time      `json:"startTime"`
	TimeLimit time.Duration  `json:"-"`
	Questions []QuestionView `json:"questions"`
}

// SubmitResult summarizes a scored submission batch. TotalScore equals
// CorrectAnswers in the current scoring model.
type SubmitResult struct {
	CorrectAnswers int `json:"correctAnswers"`
	TotalQuestions int `json:"totalQuestions"`
	TotalScore     int `json:"totalScore"`
}

// RankingEntry is one row of a trivia leaderboard.
type RankingEntry struct {
	UserName   string `json:"userName"`
	TotalScore int    `json:"totalScore"`
}

// Ranking is the ordered scoreboard for one trivia.
type Ranking struct {
	TriviaID  string         `json:"triviaId"`
	Entries   []RankingEntry `json:"entries"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
