package poll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"buzzer-service/internal/domain"
	"buzzer-service/internal/poll"
)

type fakeFetcher struct {
	mu      sync.Mutex
	entries []domain.OrderEntry
	err     error
	calls   int
	fetched chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fetched: make(chan struct{}, 16)}
}

func (f *fakeFetcher) FetchOrder(_ context.Context, _ uuid.UUID) ([]domain.OrderEntry, error) {
	f.mu.Lock()
	f.calls++
	entries, err := f.entries, f.err
	f.mu.Unlock()
	f.fetched <- struct{}{}
	return entries, err
}

func (f *fakeFetcher) set(entries []domain.OrderEntry, err error) {
	f.mu.Lock()
	f.entries, f.err = entries, err
	f.mu.Unlock()
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFetch(t *testing.T, f *fakeFetcher) {
	t.Helper()
	select {
	case <-f.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch")
	}
}

func TestRunFetchesImmediatelyThenOnInterval(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set([]domain.OrderEntry{{ParticipantName: "Alice"}}, nil)
	clock := clockwork.NewFakeClock()
	p := poll.NewPoller(fetcher, uuid.New(), 3*time.Second, 3, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	waitFetch(t, fetcher)
	snap := p.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].ParticipantName != "Alice" {
		t.Fatalf("unexpected first snapshot: %+v", snap)
	}

	clock.BlockUntil(1)
	clock.Advance(3 * time.Second)
	waitFetch(t, fetcher)
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}

	cancel()
	<-done
}

func TestFailedTickKeepsLastGoodEntries(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set([]domain.OrderEntry{{ParticipantName: "Bob"}}, nil)
	clock := clockwork.NewFakeClock()
	p := poll.NewPoller(fetcher, uuid.New(), 3*time.Second, 3, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFetch(t, fetcher)
	fetcher.set(nil, errors.New("connection refused"))

	clock.BlockUntil(1)
	clock.Advance(3 * time.Second)
	waitFetch(t, fetcher)

	snap := p.Snapshot()
	if snap.Err == nil || snap.Failures != 1 {
		t.Fatalf("expected one recorded failure, got %+v", snap)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ParticipantName != "Bob" {
		t.Fatalf("failure must not blank the last ranking, got %+v", snap.Entries)
	}
}

func TestSuspendsAfterMaxFailuresAndRefreshResumes(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(nil, errors.New("connection refused"))
	clock := clockwork.NewFakeClock()
	p := poll.NewPoller(fetcher, uuid.New(), 3*time.Second, 3, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Failures 1..3: the immediate tick plus two interval ticks.
	waitFetch(t, fetcher)
	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(3 * time.Second)
		waitFetch(t, fetcher)
	}

	snap := p.Snapshot()
	if !snap.Suspended || snap.Failures != 3 {
		t.Fatalf("expected suspension at 3 failures, got %+v", snap)
	}

	// Suspended ticks do not reach the fetcher.
	before := fetcher.callCount()
	clock.Advance(3 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := fetcher.callCount(); got != before {
		t.Fatalf("suspended poller fetched anyway: %d -> %d", before, got)
	}

	fetcher.set([]domain.OrderEntry{{ParticipantName: "Carol"}}, nil)
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	waitFetch(t, fetcher)

	snap = p.Snapshot()
	if snap.Suspended || snap.Failures != 0 || snap.Err != nil {
		t.Fatalf("refresh must clear failure state, got %+v", snap)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ParticipantName != "Carol" {
		t.Fatalf("unexpected entries after refresh: %+v", snap.Entries)
	}

	// Automatic polling is live again.
	clock.BlockUntil(1)
	clock.Advance(3 * time.Second)
	waitFetch(t, fetcher)
}

func TestRefreshReportsFetchError(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(nil, errors.New("boom"))
	clock := clockwork.NewFakeClock()
	p := poll.NewPoller(fetcher, uuid.New(), 3*time.Second, 3, clock, zerolog.Nop())

	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to surface the fetch error")
	}
	<-fetcher.fetched
	if snap := p.Snapshot(); snap.Failures != 1 {
		t.Fatalf("expected failure recorded, got %+v", snap)
	}
}

func TestUpdatesDeliversSnapshots(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set([]domain.OrderEntry{{ParticipantName: "Dave"}}, nil)
	clock := clockwork.NewFakeClock()
	p := poll.NewPoller(fetcher, uuid.New(), 3*time.Second, 3, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case snap := <-p.Updates():
		if len(snap.Entries) != 1 || snap.Entries[0].ParticipantName != "Dave" {
			t.Fatalf("unexpected update: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an update")
	}
}
