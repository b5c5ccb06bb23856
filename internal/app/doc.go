// Package app wires duewatch together: it loads configuration, initializes
// logging, opens the credential store and builds the OAuth client,
// credential manager, data sources, deliverer and scheduler from it.
//
// # Bootstrap
//
// NewApplication performs the shared part of startup used by every command:
//
//  1. Load configuration (defaults, config file, DUEWATCH_* environment)
//  2. Initialize logging at the configured level and format
//  3. Open the credential store selected by store.type
//  4. Build the OAuth client and credential manager when oauth.clientID is set
//
// The scheduler and its registry are built on demand by NewScheduler so that
// commands such as authorize and revoke work without a registry file.
//
// # Serve mode
//
// Serve runs the long-lived process: the HTTP server carrying the OAuth
// callback and /healthz, the cron-driven scheduler and the registry watcher.
// It notifies systemd (READY=1, STOPPING=1) when NOTIFY_SOCKET is set and
// shuts everything down on SIGINT or SIGTERM.
package app
