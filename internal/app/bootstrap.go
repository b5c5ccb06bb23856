package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"duewatch/internal/config"
	"duewatch/internal/credential"
	"duewatch/internal/oauth"
	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

// ErrOAuthDisabled is returned by operations that need the OAuth client
// when oauth.clientID is not configured.
var ErrOAuthDisabled = errors.New("oauth is not configured (set oauth.clientID)")

// Application holds the components shared by every command.
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, ""))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	return application.Serve(ctx)
type Application struct {
	config   *Config
	settings config.Config

	store   credential.Store
	client  *oauth.Client
	manager *credential.Manager
}

// NewApplication loads configuration, initializes logging and opens the
// credential store. The OAuth client and manager are created when OAuth is
// configured.
func NewApplication(cfg *Config) (*Application, error) {
	settings, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Settings = &settings

	level, _ := logging.ParseLevel(settings.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}
	logging.Init(level, logging.Format(settings.LogFormat), out)

	store, err := OpenStore(settings.Store)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to open %s credential store", settings.Store.Type)
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	a := &Application{config: cfg, settings: settings, store: store}

	if settings.OAuth.Enabled() {
		client, err := NewOAuthClient(settings.OAuth)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create oauth client: %w", err)
		}
		a.client = client
		a.manager = credential.NewManager(store, client, credential.ManagerConfig{
			ExpiryMargin: settings.OAuth.ExpiryMargin,
			PendingTTL:   settings.OAuth.StateTTL,
		})
	} else {
		logging.Info("Bootstrap", "OAuth is not configured; the oauth data source and callback are disabled")
	}

	logging.Debug("Bootstrap", "Using %s credential store", settings.Store.Type)
	return a, nil
}

// Settings returns the loaded configuration.
func (a *Application) Settings() config.Config {
	return a.settings
}

// Manager returns the credential manager, or ErrOAuthDisabled.
func (a *Application) Manager() (*credential.Manager, error) {
	if a.manager == nil {
		return nil, ErrOAuthDisabled
	}
	return a.manager, nil
}

// NewScheduler loads the registry and builds a scheduler with every enabled
// data source. dryRun prints alerts to out instead of delivering them.
func (a *Application) NewScheduler(dryRun bool, out io.Writer) (*scheduler.Scheduler, error) {
	registry, err := scheduler.LoadRegistry(a.settings.Scheduler.RegistryPath, a.settings.Scheduler.DefaultSource)
	if err != nil {
		return nil, err
	}

	sources, err := NewSources(a.settings.Sources, a.manager, &http.Client{Timeout: a.settings.Scheduler.FetchTimeout})
	if err != nil {
		return nil, err
	}

	deliverer, err := NewDeliverer(a.settings.Delivery, dryRun, out)
	if err != nil {
		return nil, err
	}

	sc := a.settings.Scheduler
	return scheduler.New(registry, sources, deliverer, scheduler.Config{
		Schedule:        sc.Schedule,
		Location:        sc.Location(),
		Concurrency:     sc.Concurrency,
		FetchTimeout:    sc.FetchTimeout,
		DeliveryTimeout: sc.DeliveryTimeout,
		RunOnStart:      sc.RunOnStart,
		MessageTemplate: sc.MessageTemplate,
	})
}

// Close releases the manager and the store.
func (a *Application) Close() error {
	if a.manager != nil {
		a.manager.Stop()
	}
	return a.store.Close()
}
