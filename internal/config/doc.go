// Package config loads duewatch configuration.
//
// Configuration is read in three layers: built-in defaults, then a YAML file
// (default ~/.config/duewatch/config.yaml, overridable with --config), then
// DUEWATCH_* environment variables. The result is checked by Validate.
//
// Secrets are usually supplied through the environment:
//
//	DUEWATCH_OAUTH_CLIENT_SECRET=...
//	DUEWATCH_OAUTH_STATE_SECRET=...
//	DUEWATCH_DELIVERY_SLACK_TOKEN=xoxb-...
//
// Example config.yaml:
//
//	server:
//	  port: 8001
//	  publicURL: https://duewatch.example.org
//	oauth:
//	  clientID: 1234.apps.googleusercontent.com
//	store:
//	  type: sqlite
//	  path: /var/lib/duewatch/credentials.db
//	scheduler:
//	  schedule: "0 8 * * *"
//	  timeZone: Asia/Kathmandu
//	  registryPath: /etc/duewatch/registry.yaml
//	delivery:
//	  type: slack
package config
