package config

import "time"

// Config is the top-level duewatch configuration.
type Config struct {
	LogLevel  string `yaml:"logLevel,omitempty" env:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat,omitempty" env:"LOG_FORMAT"`

	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	OAuth     OAuthConfig     `yaml:"oauth" envPrefix:"OAUTH_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Sources   SourcesConfig   `yaml:"sources" envPrefix:"SOURCES_"`
	Delivery  DeliveryConfig  `yaml:"delivery" envPrefix:"DELIVERY_"`
}

// ServerConfig is the HTTP listener serving the OAuth callback.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" env:"HOST"`
	Port int    `yaml:"port,omitempty" env:"PORT"`
	// PublicURL is the externally reachable base URL; the redirect URL is
	// derived from it when oauth.redirectURL is empty.
	PublicURL       string        `yaml:"publicURL,omitempty" env:"PUBLIC_URL"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty" env:"SHUTDOWN_TIMEOUT"`
}

// OAuthConfig configures the OAuth2 client. OAuth is enabled when ClientID
// is set.
type OAuthConfig struct {
	ClientID     string   `yaml:"clientID,omitempty" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"clientSecret,omitempty" env:"CLIENT_SECRET"`
	AuthURL      string   `yaml:"authURL,omitempty" env:"AUTH_URL"`
	TokenURL     string   `yaml:"tokenURL,omitempty" env:"TOKEN_URL"`
	RevokeURL    string   `yaml:"revokeURL,omitempty" env:"REVOKE_URL"`
	RedirectURL  string   `yaml:"redirectURL,omitempty" env:"REDIRECT_URL"`
	CallbackPath string   `yaml:"callbackPath,omitempty" env:"CALLBACK_PATH"`
	Scopes       []string `yaml:"scopes,omitempty" env:"SCOPES" envSeparator:","`
	// StateSecret signs authorization state; it must be shared by every
	// process that builds URLs or serves callbacks.
	StateSecret  string        `yaml:"stateSecret,omitempty" env:"STATE_SECRET"`
	StateTTL     time.Duration `yaml:"stateTTL,omitempty" env:"STATE_TTL"`
	PKCE         bool          `yaml:"pkce,omitempty" env:"PKCE"`
	Timeout      time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	ExpiryMargin time.Duration `yaml:"expiryMargin,omitempty" env:"EXPIRY_MARGIN"`
}

// Enabled reports whether the OAuth client is configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != ""
}

// Store backend names.
const (
	StoreTypeFile     = "file"
	StoreTypeSQLite   = "sqlite"
	StoreTypePostgres = "postgres"
)

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Type string `yaml:"type,omitempty" env:"TYPE"`
	// Path is the directory for the file store or the database file for
	// sqlite.
	Path  string `yaml:"path,omitempty" env:"PATH"`
	DSN   string `yaml:"dsn,omitempty" env:"DSN"`
	Table string `yaml:"table,omitempty" env:"TABLE"`
}

// SchedulerConfig configures the notification sweep.
type SchedulerConfig struct {
	Schedule        string        `yaml:"schedule,omitempty" env:"SCHEDULE"`
	TimeZone        string        `yaml:"timeZone,omitempty" env:"TIME_ZONE"`
	Concurrency     int           `yaml:"concurrency,omitempty" env:"CONCURRENCY"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout,omitempty" env:"FETCH_TIMEOUT"`
	DeliveryTimeout time.Duration `yaml:"deliveryTimeout,omitempty" env:"DELIVERY_TIMEOUT"`
	RunOnStart      bool          `yaml:"runOnStart,omitempty" env:"RUN_ON_START"`
	RegistryPath    string        `yaml:"registryPath,omitempty" env:"REGISTRY_PATH"`
	WatchRegistry   bool          `yaml:"watchRegistry,omitempty" env:"WATCH_REGISTRY"`
	// DefaultSource applies to registry entries that name no source.
	DefaultSource   string `yaml:"defaultSource,omitempty" env:"DEFAULT_SOURCE"`
	MessageTemplate string `yaml:"messageTemplate,omitempty" env:"MESSAGE_TEMPLATE"`
}

// SourcesConfig configures the data-source strategies.
type SourcesConfig struct {
	Classroom ClassroomConfig `yaml:"classroom" envPrefix:"CLASSROOM_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
}

// ClassroomConfig configures the OAuth-backed coursework source.
type ClassroomConfig struct {
	BaseURL  string `yaml:"baseURL,omitempty" env:"BASE_URL"`
	MaxTries uint   `yaml:"maxTries,omitempty" env:"MAX_TRIES"`
}

// SessionConfig configures the login-session source. It is enabled when
// both URLs are set.
type SessionConfig struct {
	LoginURL   string `yaml:"loginURL,omitempty" env:"LOGIN_URL"`
	ItemsURL   string `yaml:"itemsURL,omitempty" env:"ITEMS_URL"`
	CookieName string `yaml:"cookieName,omitempty" env:"COOKIE_NAME"`
}

// Enabled reports whether the session source is configured.
func (s SessionConfig) Enabled() bool {
	return s.LoginURL != "" && s.ItemsURL != ""
}

// Delivery channel names.
const (
	DeliveryTypeSlack = "slack"
	DeliveryTypeLog   = "log"
)

// DeliveryConfig selects the delivery channel.
type DeliveryConfig struct {
	Type        string `yaml:"type,omitempty" env:"TYPE"`
	SlackToken  string `yaml:"slackToken,omitempty" env:"SLACK_TOKEN"`
	SlackAPIURL string `yaml:"slackAPIURL,omitempty" env:"SLACK_API_URL"`
}
