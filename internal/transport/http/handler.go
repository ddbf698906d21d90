package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Handler is the REST adapter over the attempt service. Authentication is an
// external concern; the caller's identity arrives in the X-User-ID header.
type Handler struct {
	service *app.AttemptService
}

func NewHandler(service *app.AttemptService) *Handler {
	return &Handler{service: service}
}

// Register wires the routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /trivia/start", h.startAttempt)
	mux.HandleFunc("POST /trivia/answer", h.submitAnswers)
	mux.HandleFunc("GET /trivia/{triviaID}/ranking", h.ranking)
	mux.HandleFunc("GET /trivia/{triviaID}/submissions", h.listSubmissions)
}

type startRequest struct {
	TriviaID string `json:"triviaId"`
}

type startResponse struct {
	AttemptID        string                `json:"attemptId"`
	TriviaID         string                `json:"triviaId"`
	StartTime        time.Time             `json:"startTime"`
	TimeLimitSeconds int                   `json:"timeLimitSeconds"`
	Questions        []domain.QuestionView `json:"questions"`
}

type answerRequest struct {
	AttemptID string                   `json:"attemptId"`
	Answers   []domain.AnswerSelection `json:"answers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TriviaID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid triviaId"})
		return
	}

	started, err := h.service.StartAttempt(r.Context(), userID, req.TriviaID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		AttemptID:        started.AttemptID,
		TriviaID:         started.TriviaID,
		StartTime:        started.StartTime,
		TimeLimitSeconds: int(started.TimeLimit / time.Second),
		Questions:        started.Questions,
	})
}

func (h *Handler) submitAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AttemptID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid attemptId"})
		return
	}

	result, err := h.service.SubmitAnswers(r.Context(), req.AttemptID, userID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.service.Ranking(r.Context(), r.PathValue("triviaID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	submissions, err := h.service.ListSubmissions(r.Context(), userID, r.PathValue("triviaID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissions)
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing X-User-ID header"})
		return "", false
	}
	return userID, true
}

// writeError maps the core's typed outcomes onto response codes; the core
// itself never chooses codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTriviaNotFound), errors.Is(err, domain.ErrNoAttempts):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotAssigned):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAttemptExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAttempt):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAttemptExpired):
		status = http.StatusGone
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
