package tasks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adwatch/adwatch/app/collector"
	"github.com/adwatch/adwatch/app/config"
	"github.com/adwatch/adwatch/app/database"
	"github.com/adwatch/adwatch/app/filter"
)

var _ SchedulerInterface = (*Scheduler)(nil)

// Scheduler drives the monitoring cycles: fetch every configured search,
// filter and upsert its listings, then prune stale ads once per cycle.
// At most one cycle runs at a time; a tick arriving while a cycle is
// still in flight is dropped, not queued. Each cycle works off the
// configuration snapshot taken at its start, so a live edit applies to
// the next cycle only.
type Scheduler struct {
	configStore *config.Store
	fetcher     collector.Fetcher
	adRepo      database.AdRepository

	fetchTimeout time.Duration
	retryDelay   time.Duration
	now          func() time.Time

	busy         atomic.Bool
	droppedTicks atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(configStore *config.Store, fetcher collector.Fetcher,
	adRepo database.AdRepository) SchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configStore:  configStore,
		fetcher:      fetcher,
		adRepo:       adRepo,
		fetchTimeout: 2 * time.Minute,
		retryDelay:   5 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for the in-flight cycle to finish its
// current target. No upsert is interrupted mid-write.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// DroppedTicks returns how many cycle ticks were dropped because a
// previous cycle was still running.
func (s *Scheduler) DroppedTicks() int64 {
	return s.droppedTicks.Load()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.RunCycle()

	for {
		interval := time.Duration(s.configStore.Get().RefreshIntervalMinutes) * time.Minute
		timer := time.NewTimer(interval)

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.configStore.Changes():
			timer.Stop()
			slog.Info("Configuration changed, re-evaluating searches")
			s.RunCycle()
		case <-timer.C:
			s.RunCycle()
		}
	}
}

// RunCycle executes one full cycle unless another one is already in
// flight, in which case the tick is dropped and false is returned.
func (s *Scheduler) RunCycle() bool {
	if !s.busy.CompareAndSwap(false, true) {
		dropped := s.droppedTicks.Add(1)
		slog.Warn("Cycle tick dropped, previous cycle still running", "dropped_total", dropped)
		return false
	}
	defer s.busy.Store(false)

	s.runCycle(s.configStore.Get())
	return true
}

func (s *Scheduler) runCycle(snapshot *config.AppConfig) {
	targets := snapshot.SearchTargets()
	if len(targets) == 0 {
		slog.Debug("No search targets configured")
		return
	}

	started := s.now()
	slog.Info("Cycle started", "targets", len(targets))

	delay := targetDelay(len(targets), snapshot.RequestDelaySeconds)

	for i, target := range targets {
		if i > 0 {
			if !s.sleep(withJitter(delay)) {
				slog.Info("Shutdown requested, stopping cycle before next target")
				return
			}
		}
		s.processTarget(target, snapshot.Currency)
	}

	if s.ctx.Err() != nil {
		return
	}

	retention := time.Duration(snapshot.RetentionDays) * 24 * time.Hour
	pruned, err := s.adRepo.PruneStale(retention, s.now())
	if err != nil {
		slog.Error("Failed to prune stale ads", "error", err)
	} else if pruned > 0 {
		slog.Info("Pruned stale ads", "count", pruned)
	}

	slog.Info("Cycle finished", "targets", len(targets), "duration", s.now().Sub(started).String())
}

// processTarget handles one search URL. Any failure here is isolated:
// it is logged and the cycle moves on to the next target.
func (s *Scheduler) processTarget(target config.SearchTarget, currency string) {
	listings, err := s.fetchWithRetry(target.URL, currency)
	if err != nil {
		slog.Warn("Search target failed, skipping for this cycle", "search", target.URL, "error", err)
		return
	}

	accepted := 0
	newAds := 0
	for _, listing := range listings {
		if !filter.Accepts(listing.Title, target.Spec) {
			continue
		}
		accepted++

		isNew, err := s.upsertWithRetry(listing)
		if err != nil {
			slog.Warn("Failed to save ad, it will be picked up next cycle", "search", target.URL, "url", listing.DetailURL, "error", err)
			continue
		}
		if isNew {
			newAds++
			slog.Info("New ad found", "title", listing.Title, "price", listing.Price, "url", listing.DetailURL)
		}
	}

	slog.Debug("Search target processed", "search", target.URL, "listings", len(listings), "accepted", accepted, "new", newAds)
}

// fetchWithRetry retries a transient collection failure once within the
// same cycle. Permanent failures (soft block) go straight back to the
// caller and wait for the next cycle.
func (s *Scheduler) fetchWithRetry(searchURL, currency string) ([]collector.Listing, error) {
	listings, err := s.fetch(searchURL, currency)
	if err == nil {
		return listings, nil
	}
	if !collector.IsTransient(err) {
		return nil, err
	}

	slog.Debug("Transient collection failure, retrying", "search", searchURL, "error", err)
	if !s.sleep(s.retryDelay) {
		return nil, err
	}

	return s.fetch(searchURL, currency)
}

func (s *Scheduler) fetch(searchURL, currency string) ([]collector.Listing, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
	defer cancel()
	return s.fetcher.FetchListings(ctx, searchURL, currency)
}

func (s *Scheduler) upsertWithRetry(listing collector.Listing) (bool, error) {
	isNew, err := s.adRepo.UpsertAd(listing, s.now())
	if err == nil {
		return isNew, nil
	}

	slog.Debug("Persistence failure, retrying", "url", listing.DetailURL, "error", err)
	if !s.sleep(s.retryDelay) {
		return false, err
	}

	return s.adRepo.UpsertAd(listing, s.now())
}

// sleep waits for d unless the scheduler is shutting down. Returns false
// when interrupted by cancellation.
func (s *Scheduler) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
