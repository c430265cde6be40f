package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType distinguishes regular quiz questions from the buzzer sentinel.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionText           QuestionType = "text"
	QuestionQuickResponse  QuestionType = "quick_response"
)

// BuzzerScopeContent marks the lazily created question that anchors a quiz's
// buzzer round. There is at most one such question per quiz.
const BuzzerScopeContent = "buzzer round"

// Verdict is the adjudication state of a press. A press starts pending and
// transitions exactly once to correct or incorrect.
type Verdict string

const (
	VerdictPending   Verdict = "pending"
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
)

// VerdictFor maps an awarded point value to its verdict. Zero and negative
// awards count as incorrect; the points still land on the press record.
func VerdictFor(points int) Verdict {
	if points > 0 {
		return VerdictCorrect
	}
	return VerdictIncorrect
}

// Quiz gates participation via its active flag. The four-digit code is what
// participants type to join.
type Quiz struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question doubles as the buzzer scope: a quiz's buzzer round is modeled as a
// single quick_response question created on first press.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	QuizID   uuid.UUID    `json:"quizId"`
	Content  string       `json:"content"`
	Type     QuestionType `json:"type"`
	Points   int          `json:"points"`
	Position int          `json:"position"`
}

// Participant carries the cumulative score. The score is only ever changed by
// atomic increments at the storage layer.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	QuizID   uuid.UUID `json:"quizId"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PressRecord is one participant's buzz in a scope, timestamped server-side.
type PressRecord struct {
	ID            uuid.UUID `json:"id"`
	QuestionID    uuid.UUID `json:"questionId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Answer        string    `json:"answer"`
	Verdict       Verdict   `json:"verdict"`
	PointsAwarded int       `json:"pointsAwarded"`
	RespondedAt   time.Time `json:"respondedAt"`
}

// OrderEntry is one row of the who-buzzed-first ranking: a press joined with
// its participant's display name.
type OrderEntry struct {
	ID              uuid.UUID `json:"id"`
	ParticipantID   uuid.UUID `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	RespondedAt     time.Time `json:"respondedAt"`
	Verdict         Verdict   `json:"verdict"`
	PointsAwarded   int       `json:"pointsAwarded"`
}

// ActiveQuestion marks a question as visible to participants, and whether its
// results have been revealed. Shared with the regular-question flow.
type ActiveQuestion struct {
	ID              uuid.UUID `json:"id"`
	QuizID          uuid.UUID `json:"quizId"`
	QuestionID      uuid.UUID `json:"questionId"`
	ResultsRevealed bool      `json:"resultsRevealed"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant's standing.
type LeaderboardEntry struct {
	ParticipantID uuid.UUID `json:"participantId"`
	Name          string    `json:"name"`
	Score         int       `json:"score"`
}
