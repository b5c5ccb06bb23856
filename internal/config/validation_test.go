package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := GetDefaultConfig()
	cfg.Store.Path = "/tmp/creds"
	cfg.Scheduler.RegistryPath = "/tmp/registry.yaml"
	cfg.OAuth.RedirectURL = "http://localhost:8001/oauth/callback"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "logLevel"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "logFormat"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"state secret", func(c *Config) { c.OAuth.ClientID = "id"; c.OAuth.StateSecret = "short" }, "oauth.stateSecret"},
		{"token url", func(c *Config) {
			c.OAuth.ClientID = "id"
			c.OAuth.StateSecret = testStateSecret
			c.OAuth.TokenURL = "not a url"
		}, "oauth.tokenURL"},
		{"callback path", func(c *Config) { c.OAuth.CallbackPath = "callback" }, "oauth.callbackPath"},
		{"store type", func(c *Config) { c.Store.Type = "redis" }, "store.type"},
		{"postgres dsn", func(c *Config) { c.Store.Type = StoreTypePostgres }, "store.dsn"},
		{"schedule", func(c *Config) { c.Scheduler.Schedule = "every day" }, "scheduler.schedule"},
		{"time zone", func(c *Config) { c.Scheduler.TimeZone = "Mars/Olympus" }, "scheduler.timeZone"},
		{"default source", func(c *Config) { c.Scheduler.DefaultSource = "fax" }, "scheduler.defaultSource"},
		{"delivery type", func(c *Config) { c.Delivery.Type = "email" }, "delivery.type"},
		{"slack token", func(c *Config) { c.Delivery.Type = DeliveryTypeSlack }, "delivery.slackToken"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			found := false
			for _, e := range errs {
				if e.Field == tc.field {
					found = true
				}
			}
			assert.True(t, found, "expected error for %s, got %v", tc.field, err)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is wrong")
	assert.Equal(t, "field 'a': is wrong", errs.Error())

	errs.Add("b", "is also wrong")
	assert.Equal(t, "validation failed: field 'a': is wrong; field 'b': is also wrong", errs.Error())
}
