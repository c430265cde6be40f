package app

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"buzzer-service/internal/domain"
)

// Store abstracts the relational backing store (in-memory, Postgres).
// Implementations must provide the two atomic operations the buzzer protocol
// depends on: insert-or-fetch of the scope row, and score = score + delta
// evaluated inside the store rather than read-modify-write by the caller.
type Store interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, id uuid.UUID) (domain.Quiz, error)
	GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	SetQuizActive(ctx context.Context, id uuid.UUID, active bool) (domain.Quiz, error)

	// EnsureBuzzerScope atomically inserts the quiz's buzzer question or
	// returns the existing one. Two racing first presses must land on the
	// same scope row.
	EnsureBuzzerScope(ctx context.Context, scope domain.Question) (domain.Question, error)
	FindBuzzerScope(ctx context.Context, quizID uuid.UUID) (domain.Question, error)

	CreateParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (domain.Participant, error)
	ListParticipants(ctx context.Context, quizID uuid.UUID) ([]domain.Participant, error)
	// IncrementScore applies score = score + delta atomically and returns
	// the new total.
	IncrementScore(ctx context.Context, participantID uuid.UUID, delta int) (int, error)

	InsertPress(ctx context.Context, press domain.PressRecord) (domain.PressRecord, error)
	ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error)
	// AdjudicatePress performs the single pending->adjudicated transition.
	// It returns ErrAlreadyJudged if the press was adjudicated before, and
	// ErrPressNotFound if no press exists for the pair.
	AdjudicatePress(ctx context.Context, scopeID, participantID uuid.UUID, points int) (domain.PressRecord, error)
	DeletePresses(ctx context.Context, scopeID uuid.UUID) error

	UpsertActiveQuestion(ctx context.Context, marker domain.ActiveQuestion) (domain.ActiveQuestion, error)
	RevealResults(ctx context.Context, markerID uuid.UUID) (domain.ActiveQuestion, error)
	ListActiveQuestions(ctx context.Context, quizID uuid.UUID) ([]domain.ActiveQuestion, error)
}

// OrderSource is the read path for rankings. The Redis implementation caches
// snapshots; Invalidate is called after every press, award, and reset.
type OrderSource interface {
	ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error)
	Invalidate(ctx context.Context, scopeID uuid.UUID)
}

// storeOrders reads rankings straight from the store, with nothing to invalidate.
type storeOrders struct {
	store Store
}

func (s storeOrders) ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	return s.store.ListOrder(ctx, scopeID)
}

func (s storeOrders) Invalidate(context.Context, uuid.UUID) {}

// codeAttempts bounds how many random join codes are tried before giving up.
const codeAttempts = 10

// BuzzerService contains the buzzer coordination use cases: recording presses,
// resolving the first-to-respond order, adjudicating points, and round resets.
type BuzzerService struct {
	store  Store
	orders OrderSource
	clock  clockwork.Clock
	log    zerolog.Logger
	rnd    *rand.Rand
	rndMu  sync.Mutex

	watchMu  sync.RWMutex
	watchers map[uuid.UUID]map[chan []domain.OrderEntry]struct{}
}

// NewBuzzerService wires the service. A nil orders falls back to uncached
// store reads; a nil clock falls back to the wall clock.
func NewBuzzerService(store Store, orders OrderSource, clock clockwork.Clock, log zerolog.Logger) *BuzzerService {
	if orders == nil {
		orders = storeOrders{store: store}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BuzzerService{
		store:    store,
		orders:   orders,
		clock:    clock,
		log:      log,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		watchers: make(map[uuid.UUID]map[chan []domain.OrderEntry]struct{}),
	}
}

// CreateQuiz creates an inactive quiz with a unique four-digit join code.
func (s *BuzzerService) CreateQuiz(ctx context.Context, title string) (domain.Quiz, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Quiz{}, domain.NewValidationError("title")
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		quiz := domain.Quiz{
			ID:        uuid.New(),
			Title:     title,
			Code:      s.newJoinCode(),
			IsActive:  false,
			CreatedAt: s.clock.Now().UTC(),
		}
		err := s.store.CreateQuiz(ctx, quiz)
		if err == nil {
			s.log.Info().Str("quiz_id", quiz.ID.String()).Str("code", quiz.Code).Msg("quiz created")
			return quiz, nil
		}
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		return domain.Quiz{}, err
	}
	return domain.Quiz{}, domain.ErrCodeExhausted
}

func (s *BuzzerService) newJoinCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return strconv.Itoa(1000 + s.rnd.Intn(9000))
}

// QuizByCode looks up a quiz by its join code, for participant clients.
func (s *BuzzerService) QuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	if code == "" {
		return domain.Quiz{}, domain.NewValidationError("code")
	}
	return s.store.GetQuizByCode(ctx, code)
}

// SetQuizActive flips the participation gate. It does not cascade to presses
// or scores.
func (s *BuzzerService) SetQuizActive(ctx context.Context, quizID uuid.UUID, active bool) (domain.Quiz, error) {
	if quizID == uuid.Nil {
		return domain.Quiz{}, domain.NewValidationError("quizId")
	}
	quiz, err := s.store.SetQuizActive(ctx, quizID, active)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info().Str("quiz_id", quizID.String()).Bool("active", active).Msg("quiz active flag changed")
	return quiz, nil
}

// Join registers a participant under a quiz's join code. Inactive quizzes
// reject joins; display names are unique per quiz.
func (s *BuzzerService) Join(ctx context.Context, code, name string) (domain.Participant, error) {
	if code == "" {
		return domain.Participant{}, domain.NewValidationError("code")
	}
	if strings.TrimSpace(name) == "" {
		return domain.Participant{}, domain.NewValidationError("name")
	}

	quiz, err := s.store.GetQuizByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if !quiz.IsActive {
		return domain.Participant{}, domain.ErrQuizInactive
	}

	participant, err := s.store.CreateParticipant(ctx, domain.Participant{
		ID:       uuid.New(),
		QuizID:   quiz.ID,
		Name:     strings.TrimSpace(name),
		Score:    0,
		JoinedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.log.Info().Str("quiz_id", quiz.ID.String()).Str("participant_id", participant.ID.String()).Msg("participant joined")
	return participant, nil
}

// RecordPress appends one press for the participant in the quiz's buzzer
// scope, creating the scope on first press. Ordering is not decided here;
// the write path stays contention-free and ranking happens at read time.
func (s *BuzzerService) RecordPress(ctx context.Context, quizID, participantID uuid.UUID) (domain.PressRecord, error) {
	if quizID == uuid.Nil {
		return domain.PressRecord{}, domain.NewValidationError("quizId")
	}
	if participantID == uuid.Nil {
		return domain.PressRecord{}, domain.NewValidationError("participantId")
	}

	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.PressRecord{}, err
	}
	if !quiz.IsActive {
		return domain.PressRecord{}, domain.ErrQuizInactive
	}

	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.PressRecord{}, err
	}
	if participant.QuizID != quizID {
		return domain.PressRecord{}, domain.ErrParticipantNotFound
	}

	scope, err := s.store.EnsureBuzzerScope(ctx, domain.Question{
		ID:       uuid.New(),
		QuizID:   quizID,
		Content:  domain.BuzzerScopeContent,
		Type:     domain.QuestionQuickResponse,
		Points:   10,
		Position: 0,
	})
	if err != nil {
		return domain.PressRecord{}, err
	}

	press, err := s.store.InsertPress(ctx, domain.PressRecord{
		ID:            uuid.New(),
		QuestionID:    scope.ID,
		ParticipantID: participantID,
		Answer:        "buzz",
		Verdict:       domain.VerdictPending,
		RespondedAt:   s.clock.Now().UTC(),
	})
	if err != nil {
		return domain.PressRecord{}, err
	}

	s.orders.Invalidate(ctx, scope.ID)
	s.broadcastOrder(ctx, scope.ID)
	s.log.Debug().
		Str("scope_id", scope.ID.String()).
		Str("participant_id", participantID.String()).
		Time("responded_at", press.RespondedAt).
		Msg("press recorded")
	return press, nil
}

// PressOrder returns the ranking for a scope, earliest press first. A scope
// with no presses yields an empty slice; that is the steady state before a
// round starts, not an error.
func (s *BuzzerService) PressOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	if scopeID == uuid.Nil {
		return nil, domain.NewValidationError("scopeId")
	}
	return s.orders.ListOrder(ctx, scopeID)
}

// PressOrderForQuiz resolves the quiz's buzzer scope first. A quiz whose
// scope was never created yields an empty ranking.
func (s *BuzzerService) PressOrderForQuiz(ctx context.Context, quizID uuid.UUID) ([]domain.OrderEntry, error) {
	if quizID == uuid.Nil {
		return nil, domain.NewValidationError("quizId")
	}
	scope, err := s.store.FindBuzzerScope(ctx, quizID)
	if errors.Is(err, domain.ErrScopeNotFound) {
		return []domain.OrderEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.orders.ListOrder(ctx, scope.ID)
}

// Award applies the admin's point decision to exactly one press and bumps the
// participant's total atomically. A press is adjudicated at most once; repeat
// attempts get ErrAlreadyJudged and leave the score untouched.
func (s *BuzzerService) Award(ctx context.Context, scopeID, participantID uuid.UUID, points int) (domain.PressRecord, int, error) {
	if scopeID == uuid.Nil {
		return domain.PressRecord{}, 0, domain.NewValidationError("scopeId")
	}
	if participantID == uuid.Nil {
		return domain.PressRecord{}, 0, domain.NewValidationError("participantId")
	}

	press, err := s.store.AdjudicatePress(ctx, scopeID, participantID, points)
	if err != nil {
		return domain.PressRecord{}, 0, err
	}

	total := 0
	if points != 0 {
		total, err = s.store.IncrementScore(ctx, participantID, points)
		if err != nil {
			// The press is marked adjudicated but the score write failed;
			// surface it so the admin can retry via manual score edit.
			s.log.Error().Err(err).Str("participant_id", participantID.String()).Msg("score increment failed after adjudication")
			return press, 0, err
		}
	} else {
		participant, perr := s.store.GetParticipant(ctx, participantID)
		if perr == nil {
			total = participant.Score
		}
	}

	s.orders.Invalidate(ctx, scopeID)
	s.broadcastOrder(ctx, scopeID)
	s.log.Info().
		Str("scope_id", scopeID.String()).
		Str("participant_id", participantID.String()).
		Int("points", points).
		Int("total", total).
		Msg("press adjudicated")
	return press, total, nil
}

// ResetScope clears all presses in a scope so a new round can begin. Scores
// already awarded stay as they are. Resetting an empty scope is a no-op.
func (s *BuzzerService) ResetScope(ctx context.Context, scopeID uuid.UUID) error {
	if scopeID == uuid.Nil {
		return domain.NewValidationError("scopeId")
	}
	if err := s.store.DeletePresses(ctx, scopeID); err != nil {
		return err
	}
	s.orders.Invalidate(ctx, scopeID)
	s.broadcastOrder(ctx, scopeID)
	s.log.Info().Str("scope_id", scopeID.String()).Msg("buzzer round reset")
	return nil
}

// Leaderboard returns participants ranked by score descending, join time
// ascending on ties.
func (s *BuzzerService) Leaderboard(ctx context.Context, quizID uuid.UUID) ([]domain.LeaderboardEntry, error) {
	if quizID == uuid.Nil {
		return nil, domain.NewValidationError("quizId")
	}
	participants, err := s.store.ListParticipants(ctx, quizID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
		})
	}
	return entries, nil
}

// SetActiveQuestion marks a question as the one currently shown to
// participants, replacing any previous marker for the quiz.
func (s *BuzzerService) SetActiveQuestion(ctx context.Context, quizID, questionID uuid.UUID) (domain.ActiveQuestion, error) {
	if quizID == uuid.Nil {
		return domain.ActiveQuestion{}, domain.NewValidationError("quizId")
	}
	if questionID == uuid.Nil {
		return domain.ActiveQuestion{}, domain.NewValidationError("questionId")
	}
	return s.store.UpsertActiveQuestion(ctx, domain.ActiveQuestion{
		ID:         uuid.New(),
		QuizID:     quizID,
		QuestionID: questionID,
	})
}

// Reveal discloses results for an active question. Adjudicated points become
// visible to participants only after this.
func (s *BuzzerService) Reveal(ctx context.Context, markerID uuid.UUID) (domain.ActiveQuestion, error) {
	if markerID == uuid.Nil {
		return domain.ActiveQuestion{}, domain.NewValidationError("activeQuestionId")
	}
	return s.store.RevealResults(ctx, markerID)
}

// ActiveQuestions lists the quiz's visible questions and their reveal state.
func (s *BuzzerService) ActiveQuestions(ctx context.Context, quizID uuid.UUID) ([]domain.ActiveQuestion, error) {
	if quizID == uuid.Nil {
		return nil, domain.NewValidationError("quizId")
	}
	return s.store.ListActiveQuestions(ctx, quizID)
}

// WatchOrder subscribes to ranking changes for a scope. The first element on
// the channel is the current snapshot. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *BuzzerService) WatchOrder(ctx context.Context, scopeID uuid.UUID) (<-chan []domain.OrderEntry, func(), error) {
	if scopeID == uuid.Nil {
		return nil, nil, domain.NewValidationError("scopeId")
	}
	initial, err := s.orders.ListOrder(ctx, scopeID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []domain.OrderEntry, 8)
	s.watchMu.Lock()
	set, ok := s.watchers[scopeID]
	if !ok {
		set = make(map[chan []domain.OrderEntry]struct{})
		s.watchers[scopeID] = set
	}
	set[ch] = struct{}{}
	s.watchMu.Unlock()

	ch <- initial

	cancel := func() {
		s.watchMu.Lock()
		if set, ok := s.watchers[scopeID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.watchers, scopeID)
			}
		}
		s.watchMu.Unlock()
	}
	return ch, cancel, nil
}

func (s *BuzzerService) broadcastOrder(ctx context.Context, scopeID uuid.UUID) {
	s.watchMu.RLock()
	n := len(s.watchers[scopeID])
	s.watchMu.RUnlock()
	if n == 0 {
		return
	}

	entries, err := s.orders.ListOrder(ctx, scopeID)
	if err != nil {
		s.log.Warn().Err(err).Str("scope_id", scopeID.String()).Msg("order broadcast skipped")
		return
	}

	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	for ch := range s.watchers[scopeID] {
		select {
		case ch <- entries:
		default:
			// Drop the stale snapshot so a slow watcher never blocks the rest.
			select {
			case <-ch:
			default:
			}
			ch <- entries
		}
	}
}
