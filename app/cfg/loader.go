package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// File locations
	ConfigFile string `long:"config-file" env:"CONFIG_FILE" default:"./config.yml" description:"Path to the monitor configuration document"`
	DBFile     string `long:"db-file" env:"DB_FILE" default:"./adwatch.db" description:"Path to the SQLite database file"`

	// Collection configuration
	BrowserURL string `long:"browser-url" env:"BROWSER_URL" description:"Remote browser launcher URL (launches a local headless browser when empty)"`
	UserAgent  string `long:"user-agent" env:"USER_AGENT" description:"Fixed user agent for page fetches (rotates through a built-in list when empty)"`

	// HTTP configuration
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the configuration endpoints (optional)"`
	RateLimitRPM int    `long:"rate-limit" env:"RATE_LIMIT_RPM" default:"60" description:"Per-IP request limit per minute on the feed endpoint"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		ConfigFile:   raw.ConfigFile,
		DBFile:       raw.DBFile,
		BrowserURL:   raw.BrowserURL,
		UserAgent:    raw.UserAgent,
		APIAccessKey: raw.APIAccessKey,
		RateLimitRPM: raw.RateLimitRPM,
		Timezone:     raw.Timezone,
		Debug:        raw.Debug,
		Version:      GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
