package tasks

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adwatch/adwatch/app/collector"
	"github.com/adwatch/adwatch/app/config"
	"github.com/adwatch/adwatch/app/database"
)

// mockFetcher implements collector.Fetcher for testing
type mockFetcher struct {
	mu        sync.Mutex
	calls     []string
	fetchFunc func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error)
}

var _ collector.Fetcher = (*mockFetcher)(nil)

func (m *mockFetcher) FetchListings(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
	m.mu.Lock()
	m.calls = append(m.calls, searchURL)
	m.mu.Unlock()
	return m.fetchFunc(ctx, searchURL, currency)
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockAdRepo implements database.AdRepository for testing
type mockAdRepo struct {
	mu         sync.Mutex
	seen       map[string]bool
	upserts    []collector.Listing
	pruneCalls int
	upsertErrs int
	failUpsert error
}

var _ database.AdRepository = (*mockAdRepo)(nil)

func newMockAdRepo() *mockAdRepo {
	return &mockAdRepo{seen: make(map[string]bool)}
}

func (m *mockAdRepo) UpsertAd(listing collector.Listing, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		m.upsertErrs++
		return false, m.failUpsert
	}
	m.upserts = append(m.upserts, listing)
	isNew := !m.seen[listing.DetailURL]
	m.seen[listing.DetailURL] = true
	return isNew, nil
}

func (m *mockAdRepo) PruneStale(retention time.Duration, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	return 0, nil
}

func (m *mockAdRepo) GetRecentAds(window time.Duration, now time.Time) ([]database.Ad, error) {
	return nil, nil
}

func (m *mockAdRepo) GetAdCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen), nil
}

func (m *mockAdRepo) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

func (m *mockAdRepo) pruneCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneCalls
}

func testStore(t *testing.T, searches map[string]config.FilterSpec) *config.Store {
	t.Helper()
	appConfig := config.Default()
	appConfig.Searches = searches
	appConfig.RequestDelaySeconds = 1
	return config.NewStore(filepath.Join(t.TempDir(), "config.yml"), appConfig)
}

func newTestScheduler(t *testing.T, store *config.Store, fetcher collector.Fetcher, repo database.AdRepository) *Scheduler {
	t.Helper()
	s := NewScheduler(store, fetcher, repo).(*Scheduler)
	s.retryDelay = 0
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestRunCycle_FilterAndUpsert(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/search": {
			{Keywords: []string{"tv"}},
			{Keywords: []string{"smart"}},
		},
	})

	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			return []collector.Listing{
				{DetailURL: "https://facebook.com/marketplace/item/1/", Title: "Smart TV 55 inch", Price: "$300"},
				{DetailURL: "https://facebook.com/marketplace/item/2/", Title: "Plain TV", Price: "$100"},
			}, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)

	if !s.RunCycle() {
		t.Fatal("RunCycle should execute when idle")
	}

	if repo.upsertCount() != 1 {
		t.Fatalf("Expected 1 upsert (only the filter-accepted listing), got %d", repo.upsertCount())
	}
	if repo.upserts[0].Title != "Smart TV 55 inch" {
		t.Errorf("Wrong listing persisted: %q", repo.upserts[0].Title)
	}
	if repo.pruneCount() != 1 {
		t.Errorf("Prune should run exactly once per cycle, got %d", repo.pruneCount())
	}
}

func TestRunCycle_DroppedTick(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/search": {},
	})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			once.Do(func() { close(started) })
			<-release
			return nil, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)

	done := make(chan bool)
	go func() { done <- s.RunCycle() }()
	<-started

	if s.RunCycle() {
		t.Error("Tick during a running cycle must be dropped")
	}
	if s.DroppedTicks() != 1 {
		t.Errorf("Expected 1 dropped tick, got %d", s.DroppedTicks())
	}

	close(release)
	if !<-done {
		t.Error("Original cycle should have completed normally")
	}

	if repo.pruneCount() != 1 {
		t.Errorf("No overlapping cycle ran: prune count = %d, want 1", repo.pruneCount())
	}
}

func TestRunCycle_FailingTargetIsolated(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/bad":  {},
		"https://example.com/good": {},
	})

	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			if searchURL == "https://example.com/bad" {
				return nil, &collector.Error{Op: "navigate", URL: searchURL, Err: context.DeadlineExceeded, Transient: false}
			}
			return []collector.Listing{
				{DetailURL: "https://facebook.com/marketplace/item/1/", Title: "Chair", Price: "$20"},
			}, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)
	s.RunCycle()

	if repo.upsertCount() != 1 {
		t.Errorf("Healthy target should be processed despite the failing one, got %d upserts", repo.upsertCount())
	}
	if repo.pruneCount() != 1 {
		t.Errorf("Prune should still run after a target failure, got %d", repo.pruneCount())
	}
}

func TestRunCycle_TransientFetchRetriedOnce(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/search": {},
	})

	attempts := 0
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			attempts++
			if attempts == 1 {
				return nil, &collector.Error{Op: "wait listings", URL: searchURL, Err: context.DeadlineExceeded, Transient: true}
			}
			return []collector.Listing{
				{DetailURL: "https://facebook.com/marketplace/item/1/", Title: "Desk", Price: "$40"},
			}, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)
	s.RunCycle()

	if attempts != 2 {
		t.Errorf("Transient failure should be retried exactly once, got %d attempts", attempts)
	}
	if repo.upsertCount() != 1 {
		t.Errorf("Retried fetch should be processed, got %d upserts", repo.upsertCount())
	}
}

func TestRunCycle_PermanentFetchNotRetried(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/search": {},
	})

	attempts := 0
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			attempts++
			return nil, &collector.Error{Op: "navigate", URL: searchURL, Err: context.Canceled, Transient: false}
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)
	s.RunCycle()

	if attempts != 1 {
		t.Errorf("Permanent failure must not be retried within the cycle, got %d attempts", attempts)
	}
}

func TestRunCycle_PersistenceErrorIsolated(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/search": {},
	})

	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			return []collector.Listing{
				{DetailURL: "https://facebook.com/marketplace/item/1/", Title: "Sofa", Price: "$150"},
			}, nil
		},
	}
	repo := newMockAdRepo()
	repo.failUpsert = context.DeadlineExceeded

	s := newTestScheduler(t, store, fetcher, repo)
	s.RunCycle()

	if repo.upsertErrs != 2 {
		t.Errorf("Failed upsert should be retried once, got %d attempts", repo.upsertErrs)
	}
	if repo.pruneCount() != 1 {
		t.Errorf("Cycle should finish and prune despite persistence errors, got %d", repo.pruneCount())
	}
}

func TestRunCycle_StopsBetweenTargets(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/a": {},
		"https://example.com/b": {},
	})

	firstFetch := make(chan struct{})
	var once sync.Once
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			once.Do(func() { close(firstFetch) })
			return []collector.Listing{
				{DetailURL: "https://facebook.com/marketplace/item/1/", Title: "Lamp", Price: "$5"},
			}, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)

	done := make(chan struct{})
	go func() {
		s.RunCycle()
		close(done)
	}()

	// Cancel while the cycle sits in the inter-target delay
	<-firstFetch
	s.cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Cycle did not stop after cancellation")
	}

	if fetcher.callCount() != 1 {
		t.Errorf("No further target should be fetched after cancellation, got %d fetches", fetcher.callCount())
	}
	if repo.upsertCount() != 1 {
		t.Errorf("The in-flight target's persist step should complete, got %d upserts", repo.upsertCount())
	}
	if repo.pruneCount() != 0 {
		t.Errorf("An interrupted cycle must not prune, got %d", repo.pruneCount())
	}
}

func TestScheduler_ConfigChangeTriggersCycle(t *testing.T) {
	store := testStore(t, map[string]config.FilterSpec{
		"https://example.com/a": {},
	})

	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, searchURL, currency string) ([]collector.Listing, error) {
			return nil, nil
		},
	}
	repo := newMockAdRepo()

	s := newTestScheduler(t, store, fetcher, repo)
	s.Start()

	waitFor(t, "startup cycle", func() bool { return fetcher.callCount() == 1 })

	next := config.Default()
	next.Searches = map[string]config.FilterSpec{"https://example.com/b": {}}
	next.RequestDelaySeconds = 1
	if err := store.Replace(next); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	waitFor(t, "config-triggered cycle", func() bool { return fetcher.callCount() >= 2 })

	fetcher.mu.Lock()
	last := fetcher.calls[len(fetcher.calls)-1]
	fetcher.mu.Unlock()
	if last != "https://example.com/b" {
		t.Errorf("Cycle after config change should use the new snapshot, fetched %s", last)
	}
}
