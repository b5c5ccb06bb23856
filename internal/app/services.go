package app

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"duewatch/internal/config"
	"duewatch/internal/credential"
	"duewatch/internal/credential/filestore"
	"duewatch/internal/credential/postgres"
	"duewatch/internal/credential/sqlite"
	"duewatch/internal/delivery"
	"duewatch/internal/oauth"
	"duewatch/internal/scheduler"
	"duewatch/internal/source"
	"duewatch/pkg/logging"
)

// OpenStore opens the credential store backend selected by cfg.Type.
func OpenStore(cfg config.StoreConfig) (credential.Store, error) {
	var (
		store credential.Store
		err   error
	)
	switch cfg.Type {
	case config.StoreTypeFile, "":
		var s *filestore.Store
		s, err = filestore.New(cfg.Path)
		store = s
	case config.StoreTypeSQLite:
		var s *sqlite.Store
		s, err = sqlite.Open(cfg.Path)
		store = s
	case config.StoreTypePostgres:
		var s *postgres.Store
		s, err = postgres.New(cfg.DSN, cfg.Table)
		store = s
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewOAuthClient builds the OAuth client from configuration.
func NewOAuthClient(cfg config.OAuthConfig) (*oauth.Client, error) {
	return oauth.NewClient(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		RevokeURL:    cfg.RevokeURL,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		StateSecret:  []byte(cfg.StateSecret),
		StateTTL:     cfg.StateTTL,
		PKCE:         cfg.PKCE,
		Timeout:      cfg.Timeout,
	}, nil)
}

// NewSources builds every data source the configuration enables. The
// coursework source needs a credential manager; manager may be nil when
// OAuth is disabled.
func NewSources(cfg config.SourcesConfig, manager *credential.Manager, fetchClient *http.Client) ([]scheduler.DataSource, error) {
	var sources []scheduler.DataSource

	if manager != nil {
		sources = append(sources, source.NewCoursework(manager, source.CourseworkConfig{
			BaseURL:    cfg.Classroom.BaseURL,
			HTTPClient: fetchClient,
			MaxTries:   cfg.Classroom.MaxTries,
		}))
	}

	if cfg.Session.Enabled() {
		s, err := source.NewSession(source.SessionConfig{
			LoginURL:   cfg.Session.LoginURL,
			ItemsURL:   cfg.Session.ItemsURL,
			CookieName: cfg.Session.CookieName,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}

	for _, s := range sources {
		logging.Debug("Bootstrap", "Data source %q enabled", s.Name())
	}
	return sources, nil
}

// NewDeliverer builds the configured delivery channel. dryRun forces the
// log channel, writing to out.
func NewDeliverer(cfg config.DeliveryConfig, dryRun bool, out io.Writer) (scheduler.Deliverer, error) {
	if dryRun {
		if out == nil {
			out = os.Stdout
		}
		return delivery.NewLog(out), nil
	}
	switch cfg.Type {
	case config.DeliveryTypeSlack:
		return delivery.NewSlack(delivery.SlackConfig{Token: cfg.SlackToken, APIURL: cfg.SlackAPIURL})
	case config.DeliveryTypeLog, "":
		return delivery.NewLog(nil), nil
	default:
		return nil, fmt.Errorf("unknown delivery type %q", cfg.Type)
	}
}
