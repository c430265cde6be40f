package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buzzer-service/internal/app"
	"buzzer-service/internal/domain"
	"buzzer-service/internal/infra/memory"
	transport "buzzer-service/internal/transport/http"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := app.NewBuzzerService(memory.NewStore(), nil, nil, zerolog.Nop())
	mux := http.NewServeMux()
	transport.NewHandler(service, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func createActiveQuiz(t *testing.T, srv *httptest.Server) domain.Quiz {
	t.Helper()
	var quiz domain.Quiz
	resp := doJSON(t, srv, http.MethodPost, "/api/quiz/create", map[string]string{"title": "Trivia"}, &quiz)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create quiz: status %d", resp.StatusCode)
	}
	resp = doJSON(t, srv, http.MethodPost, "/api/quiz/active", map[string]any{"quizId": quiz.ID.String(), "active": true}, &quiz)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate quiz: status %d", resp.StatusCode)
	}
	return quiz
}

func joinQuiz(t *testing.T, srv *httptest.Server, code, name string) domain.Participant {
	t.Helper()
	var p domain.Participant
	resp := doJSON(t, srv, http.MethodPost, "/api/join", map[string]string{"code": code, "name": name}, &p)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("join: status %d", resp.StatusCode)
	}
	return p
}

func pressFor(t *testing.T, srv *httptest.Server, quizID, participantID uuid.UUID) domain.PressRecord {
	t.Helper()
	var press domain.PressRecord
	resp := doJSON(t, srv, http.MethodPost, "/api/press", map[string]string{
		"quizId":        quizID.String(),
		"participantId": participantID.String(),
	}, &press)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("press: status %d", resp.StatusCode)
	}
	return press
}

func errorKind(t *testing.T, resp *http.Response) domain.Kind {
	t.Helper()
	var payload struct {
		Error struct {
			Kind    domain.Kind `json:"kind"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload.Error.Kind
}

func TestPressAndOrderFlow(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)
	alice := joinQuiz(t, srv, quiz.Code, "Alice")
	bob := joinQuiz(t, srv, quiz.Code, "Bob")

	pressFor(t, srv, quiz.ID, bob.ID)
	pressFor(t, srv, quiz.ID, alice.ID)

	var order struct {
		Entries []domain.OrderEntry `json:"entries"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/order?quizId="+quiz.ID.String(), nil, &order)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order: status %d", resp.StatusCode)
	}
	if len(order.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(order.Entries))
	}
	if order.Entries[0].ParticipantName != "Bob" {
		t.Fatalf("expected Bob first, got %s", order.Entries[0].ParticipantName)
	}
}

func TestOrderForQuizWithoutPressesIsEmpty(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)

	var order struct {
		Entries []domain.OrderEntry `json:"entries"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/order?quizId="+quiz.ID.String(), nil, &order)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order: status %d", resp.StatusCode)
	}
	if len(order.Entries) != 0 {
		t.Fatalf("expected empty order, got %+v", order.Entries)
	}
}

func TestAwardResetLeaderboardFlow(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)
	alice := joinQuiz(t, srv, quiz.Code, "Alice")
	press := pressFor(t, srv, quiz.ID, alice.ID)

	var award struct {
		Press      domain.PressRecord `json:"press"`
		TotalScore int                `json:"totalScore"`
	}
	resp := doJSON(t, srv, http.MethodPost, "/api/award", map[string]any{
		"participantId": alice.ID.String(),
		"scopeId":       press.QuestionID.String(),
		"points":        10,
	}, &award)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("award: status %d", resp.StatusCode)
	}
	if award.TotalScore != 10 || award.Press.Verdict != domain.VerdictCorrect {
		t.Fatalf("unexpected award response: %+v", award)
	}

	resp = doJSON(t, srv, http.MethodDelete, "/api/reset?scopeId="+press.QuestionID.String(), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: status %d", resp.StatusCode)
	}

	var lb struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
	}
	resp = doJSON(t, srv, http.MethodGet, "/api/leaderboard?quizId="+quiz.ID.String(), nil, &lb)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: status %d", resp.StatusCode)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Score != 10 {
		t.Fatalf("reset must keep the score, got %+v", lb.Entries)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)
	alice := joinQuiz(t, srv, quiz.Code, "Alice")
	press := pressFor(t, srv, quiz.ID, alice.ID)

	cases := []struct {
		name       string
		run        func(t *testing.T) *http.Response
		wantStatus int
		wantKind   domain.Kind
	}{
		{
			name: "malformed body",
			run: func(t *testing.T) *http.Response {
				req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/press", bytes.NewBufferString("{"))
				resp, err := srv.Client().Do(req)
				if err != nil {
					t.Fatalf("request: %v", err)
				}
				return resp
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.KindValidation,
		},
		{
			name: "unknown quiz code",
			run: func(t *testing.T) *http.Response {
				return doJSON(t, srv, http.MethodGet, "/api/quiz/status?code=0000", nil, nil)
			},
			wantStatus: http.StatusNotFound,
			wantKind:   domain.KindNotFound,
		},
		{
			name: "duplicate name",
			run: func(t *testing.T) *http.Response {
				return doJSON(t, srv, http.MethodPost, "/api/join", map[string]string{"code": quiz.Code, "name": "Alice"}, nil)
			},
			wantStatus: http.StatusConflict,
			wantKind:   domain.KindConflict,
		},
		{
			name: "second press",
			run: func(t *testing.T) *http.Response {
				return doJSON(t, srv, http.MethodPost, "/api/press", map[string]string{
					"quizId":        quiz.ID.String(),
					"participantId": alice.ID.String(),
				}, nil)
			},
			wantStatus: http.StatusConflict,
			wantKind:   domain.KindConflict,
		},
		{
			name: "award without press",
			run: func(t *testing.T) *http.Response {
				return doJSON(t, srv, http.MethodPost, "/api/award", map[string]any{
					"participantId": uuid.New().String(),
					"scopeId":       press.QuestionID.String(),
					"points":        10,
				}, nil)
			},
			wantStatus: http.StatusNotFound,
			wantKind:   domain.KindNotFound,
		},
		{
			name: "order without scope or quiz",
			run: func(t *testing.T) *http.Response {
				return doJSON(t, srv, http.MethodGet, "/api/order", nil, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.KindValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.run(t)
			defer resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if kind := errorKind(t, resp); kind != tc.wantKind {
				t.Fatalf("kind: got %s, want %s", kind, tc.wantKind)
			}
		})
	}
}

func TestPressOnInactiveQuizIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)
	alice := joinQuiz(t, srv, quiz.Code, "Alice")

	resp := doJSON(t, srv, http.MethodPost, "/api/quiz/active", map[string]any{"quizId": quiz.ID.String(), "active": false}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: status %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodPost, "/api/press", map[string]string{
		"quizId":        quiz.ID.String(),
		"participantId": alice.ID.String(),
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != domain.KindForbidden {
		t.Fatalf("expected forbidden kind, got %s", kind)
	}
}

func TestActiveQuestionRevealEndpoints(t *testing.T) {
	srv := newTestServer(t)
	quiz := createActiveQuiz(t, srv)
	alice := joinQuiz(t, srv, quiz.Code, "Alice")
	press := pressFor(t, srv, quiz.ID, alice.ID)

	var marker domain.ActiveQuestion
	resp := doJSON(t, srv, http.MethodPost, "/api/active-question", map[string]string{
		"quizId":     quiz.ID.String(),
		"questionId": press.QuestionID.String(),
	}, &marker)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set active question: status %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodPost, "/api/reveal", map[string]string{
		"activeQuestionId": marker.ID.String(),
	}, &marker)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reveal: status %d", resp.StatusCode)
	}
	if !marker.ResultsRevealed {
		t.Fatalf("expected revealed marker, got %+v", marker)
	}

	var markers struct {
		Entries []domain.ActiveQuestion `json:"entries"`
	}
	path := fmt.Sprintf("/api/active-questions?quizId=%s", quiz.ID)
	resp = doJSON(t, srv, http.MethodGet, path, nil, &markers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active questions: status %d", resp.StatusCode)
	}
	if len(markers.Entries) != 1 || !markers.Entries[0].ResultsRevealed {
		t.Fatalf("unexpected markers: %+v", markers.Entries)
	}
}
