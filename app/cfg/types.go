package cfg

type Cfg struct {
	// File locations
	ConfigFile string
	DBFile     string

	// Collection configuration
	BrowserURL string
	UserAgent  string

	// HTTP configuration
	APIAccessKey string
	RateLimitRPM int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
