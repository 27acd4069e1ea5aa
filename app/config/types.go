package config

// Level is one AND-ed stage of a search filter. Keywords within a level
// are OR-ed and matched case-insensitively as substrings of the ad title.
type Level struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// FilterSpec is the ordered sequence of levels applied to one search.
// An empty spec accepts every title.
type FilterSpec []Level

// AppConfig is the live-editable monitor configuration. Instances handed
// out by the Store are shared snapshots and must not be mutated.
type AppConfig struct {
	ServerBinding          string                `yaml:"server_binding" json:"server_binding"`
	Currency               string                `yaml:"currency" json:"currency"`
	RefreshIntervalMinutes int                   `yaml:"refresh_interval_minutes" json:"refresh_interval_minutes"`
	RequestDelaySeconds    int                   `yaml:"request_delay_seconds,omitempty" json:"request_delay_seconds"`
	RetentionDays          int                   `yaml:"retention_days" json:"retention_days"`
	FeedWindowDays         int                   `yaml:"feed_window_days" json:"feed_window_days"`
	Searches               map[string]FilterSpec `yaml:"searches" json:"searches"`
}

// SearchTarget pairs one monitored search URL with its filter.
type SearchTarget struct {
	URL  string
	Spec FilterSpec
}

// ValidationError reports a rejected configuration document. The active
// configuration is unchanged when Replace returns one.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
