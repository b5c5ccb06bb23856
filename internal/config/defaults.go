package config

import "time"

const (
	// DefaultOAuthCallbackPath is the default path for OAuth callbacks
	DefaultOAuthCallbackPath = "/oauth/callback"

	DefaultAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURL  = "https://oauth2.googleapis.com/token"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// DefaultScopes are the read-only Classroom scopes the coursework source needs.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/classroom.courses.readonly",
	"https://www.googleapis.com/auth/classroom.coursework.me.readonly",
}

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8001,
			ShutdownTimeout: 10 * time.Second,
		},
		OAuth: OAuthConfig{
			AuthURL:      DefaultAuthURL,
			TokenURL:     DefaultTokenURL,
			RevokeURL:    DefaultRevokeURL,
			CallbackPath: DefaultOAuthCallbackPath,
			Scopes:       append([]string(nil), DefaultScopes...),
			StateTTL:     10 * time.Minute,
			PKCE:         true,
			Timeout:      30 * time.Second,
			ExpiryMargin: time.Minute,
		},
		Store: StoreConfig{
			Type:  StoreTypeFile,
			Table: "credentials",
		},
		Scheduler: SchedulerConfig{
			Schedule:        "@every 24h",
			Concurrency:     4,
			FetchTimeout:    time.Minute,
			DeliveryTimeout: 15 * time.Second,
			WatchRegistry:   true,
			DefaultSource:   "oauth",
		},
		Sources: SourcesConfig{
			Classroom: ClassroomConfig{
				BaseURL:  "https://classroom.googleapis.com",
				MaxTries: 4,
			},
		},
		Delivery: DeliveryConfig{
			Type: DeliveryTypeLog,
		},
	}
}
