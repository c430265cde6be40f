package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"buzzer-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used by tests and demo
// mode. All methods take the one lock, which makes the scope upsert and the
// score increment atomic the same way the SQL versions are.
type Store struct {
	mu sync.Mutex

	quizzes     map[uuid.UUID]domain.Quiz
	byCode      map[string]uuid.UUID
	questions   map[uuid.UUID]domain.Question
	scopeByQuiz map[uuid.UUID]uuid.UUID

	participants map[uuid.UUID]domain.Participant
	namesByQuiz  map[uuid.UUID]map[string]struct{}

	presses    map[uuid.UUID][]pressRow // keyed by scope, in insertion order
	pressIndex map[uuid.UUID]map[uuid.UUID]int

	markers map[uuid.UUID]domain.ActiveQuestion
}

type pressRow struct {
	press domain.PressRecord
	seq   int
}

func NewStore() *Store {
	return &Store{
		quizzes:      make(map[uuid.UUID]domain.Quiz),
		byCode:       make(map[string]uuid.UUID),
		questions:    make(map[uuid.UUID]domain.Question),
		scopeByQuiz:  make(map[uuid.UUID]uuid.UUID),
		participants: make(map[uuid.UUID]domain.Participant),
		namesByQuiz:  make(map[uuid.UUID]map[string]struct{}),
		presses:      make(map[uuid.UUID][]pressRow),
		pressIndex:   make(map[uuid.UUID]map[uuid.UUID]int),
		markers:      make(map[uuid.UUID]domain.ActiveQuestion),
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCode[quiz.Code]; exists {
		return domain.ErrCodeTaken
	}
	s.quizzes[quiz.ID] = quiz
	s.byCode[quiz.Code] = quiz.ID
	return nil
}

func (s *Store) GetQuiz(_ context.Context, id uuid.UUID) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) GetQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.quizzes[id], nil
}

func (s *Store) SetQuizActive(_ context.Context, id uuid.UUID, active bool) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.IsActive = active
	s.quizzes[id] = quiz
	return quiz, nil
}

func (s *Store) EnsureBuzzerScope(_ context.Context, scope domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.scopeByQuiz[scope.QuizID]; ok {
		return s.questions[existingID], nil
	}
	if _, ok := s.quizzes[scope.QuizID]; !ok {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	s.questions[scope.ID] = scope
	s.scopeByQuiz[scope.QuizID] = scope.ID
	return scope, nil
}

func (s *Store) FindBuzzerScope(_ context.Context, quizID uuid.UUID) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.scopeByQuiz[quizID]
	if !ok {
		return domain.Question{}, domain.ErrScopeNotFound
	}
	return s.questions[id], nil
}

func (s *Store) CreateParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[p.QuizID]; !ok {
		return domain.Participant{}, domain.ErrQuizNotFound
	}
	names, ok := s.namesByQuiz[p.QuizID]
	if !ok {
		names = make(map[string]struct{})
		s.namesByQuiz[p.QuizID] = names
	}
	if _, taken := names[p.Name]; taken {
		return domain.Participant{}, domain.ErrNameTaken
	}
	names[p.Name] = struct{}{}
	s.participants[p.ID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, id uuid.UUID) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ListParticipants(_ context.Context, quizID uuid.UUID) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.QuizID == quizID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) IncrementScore(_ context.Context, participantID uuid.UUID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	p.Score += delta
	s.participants[participantID] = p
	return p.Score, nil
}

func (s *Store) InsertPress(_ context.Context, press domain.PressRecord) (domain.PressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.pressIndex[press.QuestionID]
	if !ok {
		index = make(map[uuid.UUID]int)
		s.pressIndex[press.QuestionID] = index
	}
	if _, pressed := index[press.ParticipantID]; pressed {
		return domain.PressRecord{}, domain.ErrAlreadyPressed
	}
	rows := s.presses[press.QuestionID]
	index[press.ParticipantID] = len(rows)
	s.presses[press.QuestionID] = append(rows, pressRow{press: press, seq: len(rows)})
	return press, nil
}

func (s *Store) ListOrder(_ context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.presses[scopeID]
	out := make([]domain.OrderEntry, 0, len(rows))
	for _, row := range rows {
		name := "participant " + shortID(row.press.ParticipantID)
		if p, ok := s.participants[row.press.ParticipantID]; ok {
			name = p.Name
		}
		out = append(out, domain.OrderEntry{
			ID:              row.press.ID,
			ParticipantID:   row.press.ParticipantID,
			ParticipantName: name,
			RespondedAt:     row.press.RespondedAt,
			Verdict:         row.press.Verdict,
			PointsAwarded:   row.press.PointsAwarded,
		})
	}
	// Rows are held in insertion order, so a stable sort on the timestamp
	// breaks ties by insertion order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RespondedAt.Before(out[j].RespondedAt)
	})
	return out, nil
}

func (s *Store) AdjudicatePress(_ context.Context, scopeID, participantID uuid.UUID, points int) (domain.PressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.pressIndex[scopeID]
	if !ok {
		return domain.PressRecord{}, domain.ErrPressNotFound
	}
	i, ok := index[participantID]
	if !ok {
		return domain.PressRecord{}, domain.ErrPressNotFound
	}
	row := s.presses[scopeID][i]
	if row.press.Verdict != domain.VerdictPending {
		return domain.PressRecord{}, domain.ErrAlreadyJudged
	}
	row.press.Verdict = domain.VerdictFor(points)
	row.press.PointsAwarded = points
	s.presses[scopeID][i] = row
	return row.press, nil
}

func (s *Store) DeletePresses(_ context.Context, scopeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presses, scopeID)
	delete(s.pressIndex, scopeID)
	return nil
}

func (s *Store) UpsertActiveQuestion(_ context.Context, marker domain.ActiveQuestion) (domain.ActiveQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.markers {
		if m.QuizID == marker.QuizID {
			delete(s.markers, id)
		}
	}
	s.markers[marker.ID] = marker
	return marker, nil
}

func (s *Store) RevealResults(_ context.Context, markerID uuid.UUID) (domain.ActiveQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[markerID]
	if !ok {
		return domain.ActiveQuestion{}, domain.ErrMarkerNotFound
	}
	m.ResultsRevealed = true
	s.markers[markerID] = m
	return m, nil
}

func (s *Store) ListActiveQuestions(_ context.Context, quizID uuid.UUID) ([]domain.ActiveQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActiveQuestion, 0)
	for _, m := range s.markers {
		if m.QuizID == quizID {
			out = append(out, m)
		}
	}
	return out, nil
}

func shortID(id uuid.UUID) string {
	str := id.String()
	if len(str) > 8 {
		return str[:8]
	}
	return str
}
