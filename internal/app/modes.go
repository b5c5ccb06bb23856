package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"duewatch/internal/oauth"
	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

// Serve runs the callback server, the scheduler and the registry watcher
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *Application) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := a.NewScheduler(false, nil)
	if err != nil {
		logging.Error("Serve", err, "Failed to create scheduler")
		return err
	}

	var completer oauth.CallbackCompleter
	callbackPath := a.settings.OAuth.CallbackPath
	if a.manager != nil {
		completer = a.manager
		callbackPath = a.client.CallbackPath()
	}
	server := NewServer(callbackPath, completer, sched)
	addr, err := server.Listen(a.settings.Server.Addr())
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	if err := sched.Start(ctx); err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}

	var watcher *scheduler.RegistryWatcher
	if a.settings.Scheduler.WatchRegistry {
		watcher = scheduler.NewRegistryWatcher(sched.Registry(), nil)
		if err := watcher.Start(); err != nil {
			logging.Warn("Serve", "Registry watcher not started: %v", err)
			watcher = nil
		}
	}

	notifySystemd(daemon.SdNotifyReady)
	logging.Info("Serve", "duewatch is running on %s with %d registered users", addr, sched.Registry().Len())

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Serve", "Shutting down")
	case runErr = <-serveErr:
		if runErr != nil {
			logging.Error("Serve", runErr, "HTTP server stopped unexpectedly")
		}
	}

	notifySystemd(daemon.SdNotifyStopping)

	if watcher != nil {
		_ = watcher.Stop()
	}
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.settings.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("Serve", "HTTP shutdown: %v", err)
	}
	return runErr
}

// notifySystemd sends state to systemd when running under Type=notify.
func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Serve", "systemd notify %q failed: %v", state, err)
		return
	}
	if sent {
		logging.Debug("Serve", "Notified systemd: %s", state)
	}
}
