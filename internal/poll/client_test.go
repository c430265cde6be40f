package poll_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"buzzer-service/internal/domain"
	"buzzer-service/internal/poll"
)

func TestFetchOrderDecodesEntries(t *testing.T) {
	scopeID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/order" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("scopeId"); got != scopeID.String() {
			t.Errorf("unexpected scopeId %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entries":[{"participantName":"Alice","verdict":"pending"}]}`))
	}))
	defer srv.Close()

	client := poll.NewClient(srv.URL, srv.Client())
	entries, err := client.FetchOrder(context.Background(), scopeID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 1 || entries[0].ParticipantName != "Alice" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFetchOrderSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"kind":"not_found","message":"scope not found"}}`))
	}))
	defer srv.Close()

	client := poll.NewClient(srv.URL, srv.Client())
	_, err := client.FetchOrder(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected an error")
	}
	var te *domain.TransientError
	if errors.As(err, &te) {
		t.Fatalf("a server response is not a transient failure: %v", err)
	}
}

func TestFetchOrderUnreachableServerIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := poll.NewClient(srv.URL, &http.Client{Timeout: time.Second})
	_, err := client.FetchOrder(context.Background(), uuid.New())
	var te *domain.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected *domain.TransientError, got %v", err)
	}
	if domain.KindOf(err) != domain.KindTransient {
		t.Fatalf("expected transient kind, got %s", domain.KindOf(err))
	}
}
