package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buzzer-service/internal/app"
	"buzzer-service/internal/domain"
)

// Handler exposes the buzzer coordination API over JSON/HTTP.
type Handler struct {
	service *app.BuzzerService
	log     zerolog.Logger
}

func NewHandler(service *app.BuzzerService, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quiz/create", h.createQuiz)
	mux.HandleFunc("POST /api/quiz/active", h.setQuizActive)
	mux.HandleFunc("GET /api/quiz/status", h.quizStatus)
	mux.HandleFunc("POST /api/join", h.join)
	mux.HandleFunc("POST /api/press", h.press)
	mux.HandleFunc("GET /api/order", h.order)
	mux.HandleFunc("POST /api/award", h.award)
	mux.HandleFunc("DELETE /api/reset", h.reset)
	mux.HandleFunc("GET /api/leaderboard", h.leaderboard)
	mux.HandleFunc("POST /api/active-question", h.setActiveQuestion)
	mux.HandleFunc("POST /api/reveal", h.reveal)
	mux.HandleFunc("GET /api/active-questions", h.activeQuestions)
}

type errorBody struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindForbidden:
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	h.writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}})
}

func decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, domain.NewValidationError("body")
	}
	return v, nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(field)
	}
	return id, nil
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		Title string `json:"title"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), body.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) setQuizActive(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		QuizID string `json:"quizId"`
		Active bool   `json:"active"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	quizID, err := parseID(body.QuizID, "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	quiz, err := h.service.SetQuizActive(r.Context(), quizID, body.Active)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) quizStatus(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.QuizByCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	participant, err := h.service.Join(r.Context(), body.Code, body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, participant)
}

func (h *Handler) press(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		ParticipantID string `json:"participantId"`
		QuizID        string `json:"quizId"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	participantID, err := parseID(body.ParticipantID, "participantId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	quizID, err := parseID(body.QuizID, "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	press, err := h.service.RecordPress(r.Context(), quizID, participantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, press)
}

type orderResponse struct {
	Entries []domain.OrderEntry `json:"entries"`
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request) {
	var entries []domain.OrderEntry
	var err error
	switch {
	case r.URL.Query().Get("scopeId") != "":
		var scopeID uuid.UUID
		if scopeID, err = parseID(r.URL.Query().Get("scopeId"), "scopeId"); err == nil {
			entries, err = h.service.PressOrder(r.Context(), scopeID)
		}
	case r.URL.Query().Get("quizId") != "":
		var quizID uuid.UUID
		if quizID, err = parseID(r.URL.Query().Get("quizId"), "quizId"); err == nil {
			entries, err = h.service.PressOrderForQuiz(r.Context(), quizID)
		}
	default:
		err = domain.NewValidationError("scopeId")
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderResponse{Entries: entries})
}

func (h *Handler) award(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		ParticipantID string `json:"participantId"`
		ScopeID       string `json:"scopeId"`
		Points        int    `json:"points"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	participantID, err := parseID(body.ParticipantID, "participantId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	scopeID, err := parseID(body.ScopeID, "scopeId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	press, total, err := h.service.Award(r.Context(), scopeID, participantID, body.Points)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Press      domain.PressRecord `json:"press"`
		TotalScore int                `json:"totalScore"`
	}{Press: press, TotalScore: total})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	scopeID, err := parseID(r.URL.Query().Get("scopeId"), "scopeId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.ResetScope(r.Context(), scopeID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r.URL.Query().Get("quizId"), "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.service.Leaderboard(r.Context(), quizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
	}{Entries: entries})
}

func (h *Handler) setActiveQuestion(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		QuizID     string `json:"quizId"`
		QuestionID string `json:"questionId"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	quizID, err := parseID(body.QuizID, "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	questionID, err := parseID(body.QuestionID, "questionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	marker, err := h.service.SetActiveQuestion(r.Context(), quizID, questionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, marker)
}

func (h *Handler) reveal(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		ActiveQuestionID string `json:"activeQuestionId"`
	}](r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	markerID, err := parseID(body.ActiveQuestionID, "activeQuestionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	marker, err := h.service.Reveal(r.Context(), markerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, marker)
}

func (h *Handler) activeQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r.URL.Query().Get("quizId"), "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	markers, err := h.service.ActiveQuestions(r.Context(), quizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Entries []domain.ActiveQuestion `json:"entries"`
	}{Entries: markers})
}
