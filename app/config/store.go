package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRefreshIntervalMinutes = 15
	DefaultRetentionDays          = 14
	DefaultFeedWindowDays         = 7
)

// Store owns the active AppConfig. Readers get an immutable snapshot via
// an atomic pointer, so a long-running cycle and concurrent request
// handlers never observe a half-applied edit. Replace persists the new
// document before publishing it.
type Store struct {
	path    string
	current atomic.Pointer[AppConfig]
	writeMu sync.Mutex
	changes chan struct{}
}

func NewStore(path string, initial *AppConfig) *Store {
	s := &Store{
		path:    path,
		changes: make(chan struct{}, 1),
	}
	s.current.Store(initial)
	return s
}

// Load reads the configuration document at path. A missing file yields
// the default configuration so a fresh install boots with an empty
// search list and can be populated through the editing API.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var appConfig AppConfig
	if err := yaml.Unmarshal(data, &appConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&appConfig)

	if err := Validate(&appConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &appConfig, nil
}

func Default() *AppConfig {
	return &AppConfig{
		ServerBinding:          "0.0.0.0:8080",
		Currency:               "$",
		RefreshIntervalMinutes: DefaultRefreshIntervalMinutes,
		RetentionDays:          DefaultRetentionDays,
		FeedWindowDays:         DefaultFeedWindowDays,
		Searches:               map[string]FilterSpec{},
	}
}

func applyDefaults(appConfig *AppConfig) {
	if appConfig.RefreshIntervalMinutes == 0 {
		appConfig.RefreshIntervalMinutes = DefaultRefreshIntervalMinutes
	}
	if appConfig.RetentionDays == 0 {
		appConfig.RetentionDays = DefaultRetentionDays
	}
	if appConfig.FeedWindowDays == 0 {
		appConfig.FeedWindowDays = DefaultFeedWindowDays
	}
	if appConfig.Searches == nil {
		appConfig.Searches = map[string]FilterSpec{}
	}
}

// Get returns the active snapshot. Callers must treat it as read-only.
func (s *Store) Get() *AppConfig {
	return s.current.Load()
}

// Replace validates next, writes it durably to disk and then publishes
// it. The snapshot swap happens only after the file write succeeds, so
// a restart never comes up with a configuration nobody saw.
func (s *Store) Replace(next *AppConfig) error {
	applyDefaults(next)

	if err := Validate(next); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persist(next); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}

	s.current.Store(next)

	select {
	case s.changes <- struct{}{}:
	default:
	}

	return nil
}

// Changes signals that a new snapshot has been published. The channel is
// buffered and coalescing: multiple edits between reads collapse into
// one signal.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) persist(appConfig *AppConfig) error {
	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// Validate checks a configuration document. It returns a
// *ValidationError describing the first problem found.
func Validate(appConfig *AppConfig) error {
	if appConfig == nil {
		return &ValidationError{Reason: "configuration is empty"}
	}
	if appConfig.ServerBinding == "" {
		return &ValidationError{Reason: "server binding is required"}
	}
	if appConfig.RefreshIntervalMinutes <= 0 {
		return &ValidationError{Reason: "refresh interval must be greater than 0"}
	}
	if appConfig.RequestDelaySeconds < 0 {
		return &ValidationError{Reason: "request delay must not be negative"}
	}
	if appConfig.RetentionDays <= 0 {
		return &ValidationError{Reason: "retention days must be greater than 0"}
	}
	if appConfig.FeedWindowDays <= 0 {
		return &ValidationError{Reason: "feed window days must be greater than 0"}
	}

	for searchURL := range appConfig.Searches {
		parsed, err := url.Parse(searchURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &ValidationError{Reason: fmt.Sprintf("invalid search URL: %s", searchURL)}
		}
	}

	return nil
}

// SearchTargets returns the configured searches in stable URL order, so
// successive cycles visit targets in the same sequence.
func (c *AppConfig) SearchTargets() []SearchTarget {
	urls := make([]string, 0, len(c.Searches))
	for searchURL := range c.Searches {
		urls = append(urls, searchURL)
	}
	sort.Strings(urls)

	targets := make([]SearchTarget, 0, len(urls))
	for _, searchURL := range urls {
		targets = append(targets, SearchTarget{URL: searchURL, Spec: c.Searches[searchURL]})
	}
	return targets
}
