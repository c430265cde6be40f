package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"buzzer-service/internal/domain"
)

// Store is the Postgres implementation of app.Store. The two operations the
// buzzer protocol hangs on are pushed into SQL: the scope upsert rides the
// partial unique index on questions(quiz_id) WHERE type='quick_response', and
// score updates are expressed as score = score + delta, never read-then-write.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports backend health.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

func pgErrCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, title, code, is_active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		quiz.ID, quiz.Title, quiz.Code, quiz.IsActive, quiz.CreatedAt)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgUniqueViolation {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, id uuid.UUID) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, code, is_active, created_at FROM quizzes WHERE id = $1`, id).
		Scan(&quiz.ID, &quiz.Title, &quiz.Code, &quiz.IsActive, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, code, is_active, created_at FROM quizzes WHERE code = $1`, code).
		Scan(&quiz.ID, &quiz.Title, &quiz.Code, &quiz.IsActive, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz by code: %w", err)
	}
	return quiz, nil
}

func (s *Store) SetQuizActive(ctx context.Context, id uuid.UUID, active bool) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`UPDATE quizzes SET is_active = $2 WHERE id = $1
		 RETURNING id, title, code, is_active, created_at`, id, active).
		Scan(&quiz.ID, &quiz.Title, &quiz.Code, &quiz.IsActive, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("set quiz active: %w", err)
	}
	return quiz, nil
}

func (s *Store) EnsureBuzzerScope(ctx context.Context, scope domain.Question) (domain.Question, error) {
	// Insert-or-fetch in one statement: the DO UPDATE is a no-op content
	// rewrite that exists purely so RETURNING yields the surviving row.
	var out domain.Question
	err := s.pool.QueryRow(ctx,
		`INSERT INTO questions (id, quiz_id, content, type, points, "position")
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (quiz_id) WHERE type = 'quick_response'
		 DO UPDATE SET content = EXCLUDED.content
		 RETURNING id, quiz_id, content, type, points, "position"`,
		scope.ID, scope.QuizID, scope.Content, scope.Type, scope.Points, scope.Position).
		Scan(&out.ID, &out.QuizID, &out.Content, &out.Type, &out.Points, &out.Position)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgFKViolation {
			return domain.Question{}, domain.ErrQuizNotFound
		}
		return domain.Question{}, fmt.Errorf("ensure buzzer scope: %w", err)
	}
	return out, nil
}

func (s *Store) FindBuzzerScope(ctx context.Context, quizID uuid.UUID) (domain.Question, error) {
	var out domain.Question
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, content, type, points, "position"
		 FROM questions WHERE quiz_id = $1 AND type = 'quick_response'`, quizID).
		Scan(&out.ID, &out.QuizID, &out.Content, &out.Type, &out.Points, &out.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrScopeNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("find buzzer scope: %w", err)
	}
	return out, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, quiz_id, name, score, joined_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.QuizID, p.Name, p.Score, p.JoinedAt)
	if err != nil {
		switch code, _ := pgErrCode(err); code {
		case pgUniqueViolation:
			return domain.Participant{}, domain.ErrNameTaken
		case pgFKViolation:
			return domain.Participant{}, domain.ErrQuizNotFound
		}
		return domain.Participant{}, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, name, score, joined_at FROM participants WHERE id = $1`, id).
		Scan(&p.ID, &p.QuizID, &p.Name, &p.Score, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, quizID uuid.UUID) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, name, score, joined_at FROM participants
		 WHERE quiz_id = $1 ORDER BY score DESC, joined_at ASC, name ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.QuizID, &p.Name, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) IncrementScore(ctx context.Context, participantID uuid.UUID, delta int) (int, error) {
	var score int
	err := s.pool.QueryRow(ctx,
		`UPDATE participants SET score = score + $2 WHERE id = $1 RETURNING score`,
		participantID, delta).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrParticipantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return score, nil
}

func (s *Store) InsertPress(ctx context.Context, press domain.PressRecord) (domain.PressRecord, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO responses (id, question_id, participant_id, answer, verdict, points_awarded, responded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (question_id, participant_id) DO NOTHING
		 RETURNING id`,
		press.ID, press.QuestionID, press.ParticipantID, press.Answer,
		press.Verdict, press.PointsAwarded, press.RespondedAt).Scan(&press.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict swallowed the insert: this participant already
		// pressed in this round.
		return domain.PressRecord{}, domain.ErrAlreadyPressed
	}
	if err != nil {
		if code, constraint := pgErrCode(err); code == pgFKViolation {
			if strings.Contains(constraint, "participant") {
				return domain.PressRecord{}, domain.ErrParticipantNotFound
			}
			return domain.PressRecord{}, domain.ErrScopeNotFound
		}
		return domain.PressRecord{}, fmt.Errorf("insert press: %w", err)
	}
	return press, nil
}

func (s *Store) ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.participant_id,
		        COALESCE(p.name, 'participant ' || left(r.participant_id::text, 8)),
		        r.responded_at, r.verdict, r.points_awarded
		 FROM responses r
		 LEFT JOIN participants p ON p.id = r.participant_id
		 WHERE r.question_id = $1
		 ORDER BY r.responded_at ASC, r.seq ASC`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list order: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OrderEntry, 0)
	for rows.Next() {
		var e domain.OrderEntry
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.ParticipantName, &e.RespondedAt, &e.Verdict, &e.PointsAwarded); err != nil {
			return nil, fmt.Errorf("scan order entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AdjudicatePress(ctx context.Context, scopeID, participantID uuid.UUID, points int) (domain.PressRecord, error) {
	var press domain.PressRecord
	err := s.pool.QueryRow(ctx,
		`UPDATE responses SET verdict = $3, points_awarded = $4
		 WHERE question_id = $1 AND participant_id = $2 AND verdict = 'pending'
		 RETURNING id, question_id, participant_id, answer, verdict, points_awarded, responded_at`,
		scopeID, participantID, domain.VerdictFor(points), points).
		Scan(&press.ID, &press.QuestionID, &press.ParticipantID, &press.Answer,
			&press.Verdict, &press.PointsAwarded, &press.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either no press exists or it is already adjudicated; tell them apart.
		var exists bool
		if checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM responses WHERE question_id = $1 AND participant_id = $2)`,
			scopeID, participantID).Scan(&exists); checkErr != nil {
			return domain.PressRecord{}, fmt.Errorf("adjudicate press: %w", checkErr)
		}
		if exists {
			return domain.PressRecord{}, domain.ErrAlreadyJudged
		}
		return domain.PressRecord{}, domain.ErrPressNotFound
	}
	if err != nil {
		return domain.PressRecord{}, fmt.Errorf("adjudicate press: %w", err)
	}
	return press, nil
}

func (s *Store) DeletePresses(ctx context.Context, scopeID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM responses WHERE question_id = $1`, scopeID); err != nil {
		return fmt.Errorf("delete presses: %w", err)
	}
	return nil
}

func (s *Store) UpsertActiveQuestion(ctx context.Context, marker domain.ActiveQuestion) (domain.ActiveQuestion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ActiveQuestion{}, fmt.Errorf("upsert active question: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM active_questions WHERE quiz_id = $1`, marker.QuizID); err != nil {
		return domain.ActiveQuestion{}, fmt.Errorf("clear active questions: %w", err)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO active_questions (id, quiz_id, question_id, results_revealed)
		 VALUES ($1, $2, $3, FALSE)
		 RETURNING id, quiz_id, question_id, results_revealed`,
		marker.ID, marker.QuizID, marker.QuestionID).
		Scan(&marker.ID, &marker.QuizID, &marker.QuestionID, &marker.ResultsRevealed)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgFKViolation {
			return domain.ActiveQuestion{}, domain.ErrQuizNotFound
		}
		return domain.ActiveQuestion{}, fmt.Errorf("insert active question: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ActiveQuestion{}, fmt.Errorf("upsert active question: %w", err)
	}
	return marker, nil
}

func (s *Store) RevealResults(ctx context.Context, markerID uuid.UUID) (domain.ActiveQuestion, error) {
	var marker domain.ActiveQuestion
	err := s.pool.QueryRow(ctx,
		`UPDATE active_questions SET results_revealed = TRUE WHERE id = $1
		 RETURNING id, quiz_id, question_id, results_revealed`, markerID).
		Scan(&marker.ID, &marker.QuizID, &marker.QuestionID, &marker.ResultsRevealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ActiveQuestion{}, domain.ErrMarkerNotFound
	}
	if err != nil {
		return domain.ActiveQuestion{}, fmt.Errorf("reveal results: %w", err)
	}
	return marker, nil
}

func (s *Store) ListActiveQuestions(ctx context.Context, quizID uuid.UUID) ([]domain.ActiveQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, question_id, results_revealed FROM active_questions WHERE quiz_id = $1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ActiveQuestion, 0)
	for rows.Next() {
		var m domain.ActiveQuestion
		if err := rows.Scan(&m.ID, &m.QuizID, &m.QuestionID, &m.ResultsRevealed); err != nil {
			return nil, fmt.Errorf("scan active question: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
